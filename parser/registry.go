package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Registry maps lower-case file extensions (without the dot) to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a registry with the built-in parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&TextParser{}, &PDFParser{}, &DOCXParser{}, &XLSXParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser for format.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoParser, format)
	}
	return p, nil
}

// Register adds or replaces the parser for format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[strings.ToLower(format)] = p
}

// Formats lists the registered formats in sorted order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FormatOf returns the lower-case extension of path without the dot.
func FormatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ParseFile picks a parser by the file extension and runs it.
func (r *Registry) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	p, err := r.Get(FormatOf(path))
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, path)
}
