package parser

import (
	"context"
	"errors"
	"strings"
)

// ErrNoParser is returned when no parser is registered for a format.
var ErrNoParser = errors.New("parser: no parser for format")

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered sections extracted from the document
	Method   string    // "native"
}

// Section is a logical block of a parsed document.
type Section struct {
	Heading    string
	Content    string
	PageNumber int
}

// Text joins all sections into one body of prose, separated by blank lines.
// Headings become standalone sentences so they are not glued onto the
// first sentence of their section.
func (r *ParseResult) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, s := range r.Sections {
		content := strings.TrimSpace(s.Content)
		heading := strings.TrimSpace(s.Heading)
		if content == "" && heading == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if heading != "" {
			b.WriteString(asSentence(heading))
			if content != "" {
				b.WriteString("\n")
			}
		}
		b.WriteString(content)
	}
	return b.String()
}

func asSentence(s string) string {
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
