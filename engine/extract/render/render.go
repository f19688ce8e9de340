// Package render provides a headless-browser fallback for URL extraction
// when a plain HTTP fetch yields a JS-rendered shell with no visible text.
package render

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer drives a headless Chrome instance to produce fully rendered HTML.
type Renderer struct {
	timeout time.Duration
}

// NewRenderer returns a Renderer with a default per-page timeout.
func NewRenderer() *Renderer {
	return &Renderer{timeout: 20 * time.Second}
}

// Render navigates to url, waits for the body to be ready, and returns the
// rendered document's outer HTML.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, r.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}
