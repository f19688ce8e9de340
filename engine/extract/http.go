package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHTTPFetcher is the plain net/http implementation of HTTPFetcher.
type DefaultHTTPFetcher struct {
	client *http.Client
}

// NewDefaultHTTPFetcher returns an HTTPFetcher with a bounded timeout.
func NewDefaultHTTPFetcher() *DefaultHTTPFetcher {
	return &DefaultHTTPFetcher{client: &http.Client{Timeout: 20 * time.Second}}
}

// Fetch issues a GET request and returns the response body as a string.
func (f *DefaultHTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ChunkerBot/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("extract: fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
