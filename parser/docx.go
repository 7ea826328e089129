package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXParser reads WordprocessingML paragraphs and tables from a .docx
// archive. Heading and Title styles start a new section.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections, err := parseDocxXML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}
	return &ParseResult{Sections: sections, Method: "native"}, nil
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxBody struct {
	Paras  []docxPara  `xml:"p"`
	Tables []docxTable `xml:"tbl"`
}

type docxPara struct {
	PPr  *docxParaPr `xml:"pPr"`
	Runs []docxRun   `xml:"r"`
}

type docxParaPr struct {
	PStyle *docxVal `xml:"pStyle"`
}

type docxVal struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []string `xml:"t"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

func parseDocxXML(data []byte) ([]Section, error) {
	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var sections []Section
	var cur strings.Builder
	heading := ""

	flush := func() {
		if cur.Len() > 0 || heading != "" {
			sections = append(sections, Section{Heading: heading, Content: strings.TrimSpace(cur.String())})
		}
		cur.Reset()
	}

	for _, para := range doc.Body.Paras {
		text := strings.TrimSpace(para.text())
		if text == "" {
			continue
		}
		if para.isHeading() {
			flush()
			heading = text
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(text)
	}
	flush()

	// Tables follow the body text, one sentence per row.
	for _, tbl := range doc.Body.Tables {
		rows := make([][]string, 0, len(tbl.Rows))
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				var parts []string
				for _, p := range cell.Paras {
					if t := strings.TrimSpace(p.text()); t != "" {
						parts = append(parts, t)
					}
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			rows = append(rows, cells)
		}
		if content := rowsToSentences(rows); content != "" {
			sections = append(sections, Section{Content: content})
		}
	}
	return sections, nil
}

func (p docxPara) text() string {
	var b strings.Builder
	for _, run := range p.Runs {
		for _, t := range run.Text {
			b.WriteString(t)
		}
	}
	return b.String()
}

func (p docxPara) isHeading() bool {
	if p.PPr == nil || p.PPr.PStyle == nil {
		return false
	}
	style := strings.ToLower(p.PPr.PStyle.Val)
	return strings.HasPrefix(style, "heading") || strings.HasPrefix(style, "title")
}
