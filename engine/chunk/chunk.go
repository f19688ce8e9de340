// Package chunk splits extracted document text into overlap-bounded pieces
// ready for embedding.
package chunk

import "strings"

const (
	// DefaultMaxLen is the default maximum chunk length in characters.
	DefaultMaxLen = 500
	// DefaultOverlap is the default number of characters carried into the
	// next chunk from the tail of the previous one.
	DefaultOverlap = 3
)

// Config controls how Split breaks text into chunks.
type Config struct {
	MaxLen  int
	Overlap int
}

// DefaultConfig returns the spec default: 500-character chunks, 3-character
// overlap.
func DefaultConfig() Config {
	return Config{MaxLen: DefaultMaxLen, Overlap: DefaultOverlap}
}

func (c Config) normalized() Config {
	if c.MaxLen <= 0 {
		c.MaxLen = DefaultMaxLen
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.MaxLen {
		c.Overlap = c.MaxLen - 1
	}
	return c
}

// Chunk is one piece of a split document, carrying the reference it was cut
// from (a file-level or section-level identifier supplied by the caller).
type Chunk struct {
	Text      string
	Reference string
	Index     int
}

// Split breaks text into an ordered sequence of chunks, each non-empty and
// at most cfg.MaxLen characters, preferring to break on the last newline
// inside the window and falling back to a hard cut at the length limit.
// Deterministic given (text, reference, cfg).
func Split(text, reference string, cfg Config) []Chunk {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	cfg = cfg.normalized()

	var chunks []Chunk
	idx := 0
	start := 0
	textLen := len(text)

	for start < textLen {
		end := start + cfg.MaxLen
		if end > textLen {
			end = textLen
		} else {
			if nl := strings.LastIndexByte(text[start:end], '\n'); nl > 0 {
				end = start + nl
			}
		}

		piece := strings.Trim(text[start:end], "\n")
		if piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Reference: reference, Index: idx})
			idx++
		}

		if end >= textLen {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
