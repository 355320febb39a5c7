package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"campaignkb/internal/kberrors"
)

// DOCXExtractor reads word/document.xml out of the OOXML zip container and
// splits on paragraphs styled "Heading*"/"Title", grounded on
// bbiangul-go-reason/parser/docx.go's parseDocxXML — itself stdlib-only
// (archive/zip + encoding/xml), trimmed of that parser's image-relationship
// walking since this service treats images as a separate upload MIME type.
type DOCXExtractor struct{}

type docxBody struct {
	XMLName xml.Name   `xml:"body"`
	Paras   []docxPara `xml:"p"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	PPr  *docxParaPr `xml:"pPr"`
	Runs []docxRun   `xml:"r"`
}

type docxParaPr struct {
	PStyle *docxPStyle `xml:"pStyle"`
}

type docxPStyle struct {
	Val string `xml:"val,attr"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

func (e *DOCXExtractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, kberrors.New(kberrors.ParseError, "extract.docx", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, kberrors.New(kberrors.InvalidSource, "extract.docx", fmt.Errorf("word/document.xml not found"))
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, kberrors.New(kberrors.ParseError, "extract.docx", err)
	}
	defer rc.Close()

	xmlData, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var doc docxDocument
	if err := xml.Unmarshal(xmlData, &doc); err != nil {
		return nil, kberrors.New(kberrors.ParseError, "extract.docx", err)
	}

	var sections []Section
	var heading string
	var body strings.Builder
	hasText := false
	// OOXML paragraphs carry no line numbers of their own; paragraph index
	// (1-indexed) stands in for a line number, consistent with how the other
	// extractors number lines of their own source text.
	sectionStart := 1

	flush := func(endPara int) {
		content := strings.TrimSpace(body.String())
		if content != "" {
			hasText = true
		}
		if content != "" || heading != "" {
			sections = append(sections, Section{Heading: heading, Content: content, StartLine: sectionStart, EndLine: endPara})
		}
		body.Reset()
	}

	for i, para := range doc.Body.Paras {
		paraNum := i + 1
		text := paraText(para)
		if text == "" {
			continue
		}
		style := ""
		if para.PPr != nil && para.PPr.PStyle != nil {
			style = strings.ToLower(para.PPr.PStyle.Val)
		}
		if strings.HasPrefix(style, "heading") || strings.HasPrefix(style, "title") {
			flush(paraNum - 1)
			heading = text
			sectionStart = paraNum
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(text)
	}
	flush(len(doc.Body.Paras))

	return &Result{Sections: sections, HasExtractedText: hasText}, nil
}

func paraText(p docxPara) string {
	var b strings.Builder
	for _, run := range p.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
