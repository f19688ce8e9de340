// Package markdown converts extracted HTML/text into markdown and segments
// it into heading-bounded sections, the shape PDF and DOC extraction need to
// produce one Item per section.
package markdown

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Converter adapts github.com/JohannesKaufmann/html-to-markdown/v2.
type Converter struct{}

// NewConverter returns the default markdown converter.
func NewConverter() *Converter { return &Converter{} }

// Convert turns html into markdown text.
func (c *Converter) Convert(html string) (string, error) {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

var headingLine = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*)$`)

// Section is one heading-bounded slice of a markdown document.
type Section struct {
	Heading string
	Body    string
}

// Segment splits markdown into sections by heading. Text before the first
// heading (if any) becomes a section with an empty Heading. Sections with
// no body text are dropped.
func Segment(md string) []Section {
	matches := headingLine.FindAllStringSubmatchIndex(md, -1)
	if len(matches) == 0 {
		body := strings.TrimSpace(md)
		if body == "" {
			return nil
		}
		return []Section{{Body: body}}
	}

	var sections []Section
	if matches[0][0] > 0 {
		if body := strings.TrimSpace(md[:matches[0][0]]); body != "" {
			sections = append(sections, Section{Body: body})
		}
	}
	for i, m := range matches {
		heading := md[m[4]:m[5]]
		bodyStart := m[1]
		bodyEnd := len(md)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := strings.TrimSpace(md[bodyStart:bodyEnd])
		if body == "" {
			continue
		}
		sections = append(sections, Section{Heading: strings.TrimSpace(heading), Body: body})
	}
	return sections
}
