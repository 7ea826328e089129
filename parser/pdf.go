package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts the plain text layer of a PDF, one or more sections
// per page.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var sections []Section
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("parser: skipping unreadable pdf page", "path", path, "page", i, "error", err)
			continue
		}
		sections = append(sections, splitPage(text, i)...)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no text layer found in PDF")
	}
	return &ParseResult{Sections: sections, Method: "native"}, nil
}

// splitPage groups a page's lines into sections at likely headings. Lines
// inside a section are joined with spaces since PDF line breaks rarely
// match sentence boundaries.
func splitPage(text string, pageNum int) []Section {
	var sections []Section
	var cur strings.Builder
	heading := ""

	flush := func() {
		if cur.Len() > 0 || heading != "" {
			sections = append(sections, Section{
				Heading:    heading,
				Content:    strings.TrimSpace(cur.String()),
				PageNumber: pageNum,
			})
		}
		cur.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isLikelyHeading(trimmed) {
			flush()
			heading = trimmed
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

func isLikelyHeading(line string) bool {
	if len(line) > 100 {
		return false
	}
	if len(line) > 2 && line == strings.ToUpper(line) && strings.ToLower(line) != line {
		return true
	}
	// Numbered heading like "1.", "2.3 Scope"
	if line[0] >= '0' && line[0] <= '9' {
		head, _, _ := strings.Cut(line, " ")
		if strings.Contains(head, ".") && !strings.HasSuffix(line, ".") {
			return true
		}
	}
	lower := strings.ToLower(line)
	for _, prefix := range []string{"section ", "chapter ", "article ", "part "} {
		if strings.HasPrefix(lower, prefix) && !strings.HasSuffix(line, ".") {
			return true
		}
	}
	return false
}
