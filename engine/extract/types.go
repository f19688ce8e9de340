// Package extract turns a job's source document into one or more text
// items ready for chunking.
package extract

import (
	"context"

	"github.com/cognixio/chunker/pkg/resilience"
)

// FileType tags which extractor variant a job requires.
type FileType string

const (
	FileTypeURL FileType = "URL"
	FileTypePDF FileType = "PDF"
	FileTypeDOC FileType = "DOC"
	FileTypeTXT FileType = "TXT"
	FileTypeMD  FileType = "MD"
	FileTypeYT  FileType = "YT"
)

// Job is the work-queue message, field names as put on the wire.
type Job struct {
	URL              string   `json:"url"`
	SiteMap          string   `json:"site_map,omitempty"`
	SearchForSitemap bool     `json:"search_for_sitemap,omitempty"`
	DocumentID       int64    `json:"document_id"`
	ConnectorID      int64    `json:"connector_id"`
	FileType         FileType `json:"file_type"`
	URLRecursive     bool     `json:"url_recursive,omitempty"`
	BlobRef          string   `json:"blob_ref,omitempty"`
	CollectionName   string   `json:"collection_name"`
	ModelName        string   `json:"model_name"`
	ModelDimension   int32    `json:"model_dimension"`
}

// Item is one extracted unit of text, with a reference identifying where it
// came from (a URL, a section heading, or the source document itself).
type Item struct {
	Content   string
	Reference string
}

// Extractor pulls text items out of a job's source document.
type Extractor interface {
	Extract(ctx context.Context, job Job) ([]Item, error)
}

// Dispatch returns the Extractor for job.FileType.
func Dispatch(deps Deps) map[FileType]Extractor {
	return map[FileType]Extractor{
		FileTypeURL: &URLExtractor{HTTPFetcher: deps.HTTPFetcher, Renderer: deps.Renderer, MaxDepth: deps.MaxDepth, MaxPages: deps.MaxPages, Limiter: deps.CrawlLimiter},
		FileTypePDF: &PDFExtractor{Blobs: deps.Blobs, Markdown: deps.Markdown},
		FileTypeDOC: &DOCExtractor{Blobs: deps.Blobs, Markdown: deps.Markdown},
		FileTypeTXT: &TextExtractor{Blobs: deps.Blobs},
		FileTypeMD:  &TextExtractor{Blobs: deps.Blobs},
		FileTypeYT:  &YouTubeExtractor{Transcripts: deps.Transcripts},
	}
}

// Deps collects the collaborators the extractor variants need. Each has a
// single concrete default adapter in this package or a subpackage; callers
// may substitute fakes in tests.
type Deps struct {
	HTTPFetcher HTTPFetcher
	Renderer    Renderer
	Blobs       BlobFetcher
	Markdown    MarkdownConverter
	Transcripts TranscriptFetcher
	MaxDepth    int
	MaxPages    int
	// CrawlLimiter paces recursive crawl page fetches. Nil means
	// unthrottled.
	CrawlLimiter *resilience.Limiter
}

// For extracts the right Extractor for job.FileType from a dispatch table,
// matching the single-switch style the rest of the pipeline uses elsewhere.
func For(table map[FileType]Extractor, ft FileType) (Extractor, bool) {
	e, ok := table[ft]
	return e, ok
}
