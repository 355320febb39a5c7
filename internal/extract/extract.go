// Package extract implements the format-specific text extraction stage:
// normalized text plus page/section boundary tracking, dispatched by
// a document's MIME type. Grounded on bbiangul-go-reason/parser's
// heading-detection PDF/DOCX parsers, simplified to the text + boundary
// shape this service's chunker needs rather than that parser's richer
// structural/image extraction.
package extract

import (
	"context"
	"io"
	"strings"

	"campaignkb/internal/documents"
	"campaignkb/internal/kberrors"
)

// Section is one labeled span of extracted text: a page and/or the nearest
// preceding heading, if any were detected, plus the inclusive 1-indexed line
// range it occupies in the text it was cut from (a PDF page's text, or the
// whole normalized document for formats with no page concept).
type Section struct {
	Heading   string
	Page      *int
	Content   string
	StartLine int
	EndLine   int
}

// Result is the product of extraction: sections in document order, plus a
// flag recording whether any non-whitespace text was found at all. A
// scanned, paginated document with whitespace-only pages still completes —
// it just has HasExtractedText=false.
type Result struct {
	Sections         []Section
	HasExtractedText bool
}

// FullText concatenates every section's content in order, double-newline
// separated, the input the chunker consumes.
func (r *Result) FullText() string {
	parts := make([]string, 0, len(r.Sections))
	for _, s := range r.Sections {
		if s.Content != "" {
			parts = append(parts, s.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Extractor produces a Result from raw bytes of a known format.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (*Result, error)
}

// Normalize strips a UTF-8 BOM and converts CRLF/CR line endings to LF, so
// every extractor feeds the chunker the same normalized text regardless of
// source line-ending convention.
func Normalize(s string) string {
	s = strings.TrimPrefix(s, "﻿")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// ForMIME returns the Extractor registered for mime, or an unsupported_mime
// error if none is registered — which should be unreachable in practice
// since documents.New already rejects non-whitelisted MIME types before a
// Document (and therefore an ingestion job) can exist.
func ForMIME(mime documents.MIME) (Extractor, error) {
	switch mime {
	case documents.MIMEPDF:
		return &PDFExtractor{}, nil
	case documents.MIMERichText:
		return &DOCXExtractor{}, nil
	case documents.MIMEPlainText:
		return &PlainTextExtractor{}, nil
	case documents.MIMEMarkdown:
		return &MarkdownExtractor{}, nil
	case documents.MIMEPNG, documents.MIMEJPEG, documents.MIMEWebP:
		return &ImageExtractor{}, nil
	default:
		return nil, kberrors.New(kberrors.UnsupportedMIME, "extract.ForMIME", nil)
	}
}
