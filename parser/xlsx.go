package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser turns each worksheet into a section. When a sheet has a
// header row, every data row becomes a sentence of "header: value" pairs.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xlsm"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sections []Section
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if content := rowsToSentences(rows); content != "" {
			sections = append(sections, Section{Heading: sheet, Content: content})
		}
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}
	return &ParseResult{Sections: sections, Method: "native"}, nil
}

func rowsToSentences(rows [][]string) string {
	var header []string
	body := rows
	if len(rows) > 1 {
		header, body = rows[0], rows[1:]
	}

	var b strings.Builder
	for _, row := range body {
		var parts []string
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				parts = append(parts, strings.TrimSpace(header[i])+": "+cell)
			} else {
				parts = append(parts, cell)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(asSentence(strings.Join(parts, "; ")))
	}
	return b.String()
}
