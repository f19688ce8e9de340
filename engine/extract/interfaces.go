package extract

import "context"

// HTTPFetcher fetches a page's raw HTML body.
type HTTPFetcher interface {
	Fetch(ctx context.Context, url string) (html string, err error)
}

// Renderer is the headless-browser fallback used when the plain HTML fetch
// yields no visible text (JS-rendered pages).
type Renderer interface {
	Render(ctx context.Context, url string) (html string, err error)
}

// BlobFetcher fetches raw bytes for a blob reference. Implemented by
// pkg/blobstore.Store; declared again here so this package depends only on
// the shape it needs.
type BlobFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// MarkdownConverter turns extracted HTML/text into markdown with heading
// structure, so PDF/DOC extraction can segment by section.
type MarkdownConverter interface {
	Convert(html string) (markdown string, err error)
}

// TranscriptFetcher retrieves a YouTube video transcript.
type TranscriptFetcher interface {
	Transcript(ctx context.Context, videoID string) (string, error)
}
