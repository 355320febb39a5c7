package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"campaignkb/internal/kberrors"
)

// PDFExtractor walks each page of a PDF, reconstructs visual reading order
// from the content stream's text-run positions, and splits page text into
// sections on detected heading lines — grounded on
// bbiangul-go-reason/parser/pdf.go's extractPageTextOrdered and
// splitPageIntoSections, trimmed of that parser's image extraction (out of
// this service's scope: images are their own MIME type, never embedded
// extraction targets) and multi-language heading vocabulary.
type PDFExtractor struct{}

func (e *PDFExtractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	ra, size, err := readerAt(r)
	if err != nil {
		return nil, kberrors.New(kberrors.InvalidSource, "extract.pdf", err)
	}

	reader, err := pdf.NewReader(ra, size)
	if err != nil {
		if strings.Contains(err.Error(), "encrypt") {
			return nil, kberrors.New(kberrors.EncryptedSource, "extract.pdf", err)
		}
		return nil, kberrors.New(kberrors.ParseError, "extract.pdf", err)
	}

	var sections []Section
	hasText := false

	for i := 1; i <= reader.NumPage(); i++ {
		if ctx.Err() != nil {
			return nil, kberrors.New(kberrors.Cancelled, "extract.pdf", ctx.Err())
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := extractPageTextOrdered(page)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		hasText = true
		pageNum := i
		sections = append(sections, splitPageIntoSections(text, &pageNum)...)
	}

	return &Result{Sections: sections, HasExtractedText: hasText}, nil
}

func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0
	type visualLine struct {
		y   float64
		buf strings.Builder
	}
	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		if text := strings.TrimSpace(l.buf.String()); text != "" {
			parts = append(parts, text)
		}
	}
	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// splitPageIntoSections breaks page text on detected heading lines, each
// section carrying the heading that precedes it (or none) and the page
// number it came from.
func splitPageIntoSections(text string, page *int) []Section {
	lines := strings.Split(text, "\n")
	var sections []Section
	var heading string
	var body strings.Builder
	sectionStart := 1

	flush := func(endLine int) {
		content := strings.TrimSpace(body.String())
		if content != "" || heading != "" {
			sections = append(sections, Section{Heading: heading, Page: page, Content: content, StartLine: sectionStart, EndLine: endLine})
		}
		body.Reset()
	}

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isLikelyHeading(trimmed) {
			flush(lineNum - 1)
			heading = trimmed
			sectionStart = lineNum
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(trimmed)
	}
	flush(len(lines))

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{Page: page, Content: text, StartLine: 1, EndLine: len(lines)})
	}
	return sections
}

func isLikelyHeading(line string) bool {
	if len(line) < 100 && len(line) > 2 && line == strings.ToUpper(line) {
		return true
	}
	if len(line) < 120 && line[0] >= '0' && line[0] <= '9' {
		limit := 10
		if limit > len(line) {
			limit = len(line)
		}
		if strings.Contains(line[:limit], ".") {
			return true
		}
	}
	lower := strings.ToLower(line)
	for _, prefix := range []string{"chapter ", "section ", "part ", "appendix "} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func readerAt(r io.Reader) (io.ReaderAt, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("empty pdf input")
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
