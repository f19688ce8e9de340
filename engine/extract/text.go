package extract

import (
	"context"
	"fmt"
	"strings"
)

// TextExtractor handles TXT and MD jobs: the whole blob is one Item, no
// segmentation.
type TextExtractor struct {
	Blobs BlobFetcher
}

// Extract implements Extractor.
func (e *TextExtractor) Extract(ctx context.Context, job Job) ([]Item, error) {
	data, err := e.Blobs.Fetch(ctx, job.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("extract: fetch text blob: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}
	return []Item{{Content: text, Reference: job.BlobRef}}, nil
}
