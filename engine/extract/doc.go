package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cognixio/chunker/engine/extract/markdown"
	"github.com/nguyenthenguyen/docx"
)

// DOCExtractor fetches a Word document from the blob store, extracts its
// text, converts it to markdown, and segments by heading into one Item per
// section.
type DOCExtractor struct {
	Blobs    BlobFetcher
	Markdown MarkdownConverter
}

// Extract implements Extractor.
func (e *DOCExtractor) Extract(ctx context.Context, job Job) ([]Item, error) {
	data, err := e.Blobs.Fetch(ctx, job.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("extract: fetch doc blob: %w", err)
	}

	text, err := extractDOCText(data)
	if err != nil {
		return nil, fmt.Errorf("extract: doc text: %w", err)
	}
	if text == "" {
		return nil, nil
	}

	html := pageTextToHTML(text)
	md, err := e.Markdown.Convert(html)
	if err != nil {
		return nil, fmt.Errorf("extract: doc to markdown: %w", err)
	}

	sections := markdown.Segment(md)
	items := make([]Item, 0, len(sections))
	for i, s := range sections {
		ref := fmt.Sprintf("%s#%d", job.BlobRef, i+1)
		content := s.Body
		if s.Heading != "" {
			content = s.Heading + "\n\n" + s.Body
		}
		items = append(items, Item{Content: content, Reference: ref})
	}
	return items, nil
}

func extractDOCText(data []byte) (string, error) {
	f, err := os.CreateTemp("", "chunker-doc-*.docx")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", err
	}

	doc, err := docx.ReadDocxFile(f.Name())
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())
	return text, nil
}
