package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser handles plain text and Markdown files. Markdown is split on
// ATX headings; everything else is passed through untouched.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "text", "md", "markdown"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return &ParseResult{Method: "native"}, nil
	}

	switch FormatOf(path) {
	case "md", "markdown":
		return &ParseResult{Sections: splitMarkdown(content), Method: "native"}, nil
	}
	return &ParseResult{
		Sections: []Section{{Content: content}},
		Method:   "native",
	}, nil
}

// splitMarkdown breaks a Markdown document into sections at "#" headings.
// Fenced code blocks are dropped.
func splitMarkdown(md string) []Section {
	var sections []Section
	var cur strings.Builder
	heading := ""
	inFence := false

	flush := func() {
		text := strings.TrimSpace(cur.String())
		if text != "" || heading != "" {
			sections = append(sections, Section{Heading: heading, Content: text})
		}
		cur.Reset()
	}

	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if h, ok := markdownHeading(trimmed); ok {
			flush()
			heading = h
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "-*+> ")
		if trimmed == "" {
			cur.WriteString("\n")
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(trimmed)
	}
	flush()
	return sections
}

func markdownHeading(line string) (string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return "", false
	}
	return strings.TrimSpace(strings.TrimRight(line[level:], "# ")), true
}
