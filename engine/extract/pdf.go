package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cognixio/chunker/engine/extract/markdown"
	"github.com/gen2brain/go-fitz"
)

// PDFExtractor fetches a PDF from the blob store, extracts text page by
// page, converts it to markdown, and segments by heading into one Item per
// section.
type PDFExtractor struct {
	Blobs    BlobFetcher
	Markdown MarkdownConverter
}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, job Job) ([]Item, error) {
	data, err := e.Blobs.Fetch(ctx, job.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("extract: fetch pdf blob: %w", err)
	}

	text, err := extractPDFText(data)
	if err != nil {
		return nil, fmt.Errorf("extract: pdf text: %w", err)
	}
	if text == "" {
		return nil, nil
	}

	html := pageTextToHTML(text)
	md, err := e.Markdown.Convert(html)
	if err != nil {
		return nil, fmt.Errorf("extract: pdf to markdown: %w", err)
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

func extractPDFText(data []byte) (string, error) {
	f, err := os.CreateTemp("", "chunker-pdf-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", err
	}

	doc, err := fitz.New(f.Name())
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	numPages := doc.NumPage()
	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		if i < numPages-1 {
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// pageTextToHTML wraps plain extracted page text in a lightly tagged HTML
// reconstruction so the markdown converter can preserve section structure.
// PDFs carry no semantic markup once extracted as text, so headings are
// inferred heuristically: a short line (under 80 characters, no trailing
// sentence punctuation) is treated as a heading.
func pageTextToHTML(text string) string {
	lines := strings.Split(text, "\n")
	var sb strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if looksLikeHeading(line) {
			sb.WriteString("<h2>")
			sb.WriteString(line)
			sb.WriteString("</h2>\n")
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(line)
		sb.WriteString("</p>\n")
	}
	return sb.String()
}

func looksLikeHeading(line string) bool {
	if len(line) == 0 || len(line) > 80 {
		return false
	}
	last := line[len(line)-1]
	if last == '.' || last == ',' || last == ';' {
		return false
	}
	return !strings.ContainsAny(line, ".!?")
}
