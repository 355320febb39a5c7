package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignkb/internal/documents"
)

func TestForMIME_UnsupportedReturnsError(t *testing.T) {
	_, err := ForMIME(documents.MIME("application/x-msdownload"))
	require.Error(t, err)
}

func TestPlainTextExtractor_NormalizesBOMAndCRLF(t *testing.T) {
	e := &PlainTextExtractor{}
	input := "﻿Hello\r\nWorld\r\n"
	res, err := e.Extract(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.True(t, res.HasExtractedText)
	assert.Equal(t, "Hello\nWorld\n", res.Sections[0].Content)
	assert.Equal(t, 1, res.Sections[0].StartLine)
	assert.Equal(t, 3, res.Sections[0].EndLine)
}

func TestPlainTextExtractor_EmptyInput(t *testing.T) {
	e := &PlainTextExtractor{}
	res, err := e.Extract(context.Background(), strings.NewReader("   \n\t"))
	require.NoError(t, err)
	assert.False(t, res.HasExtractedText)
}

func TestMarkdownExtractor_SplitsOnHeadings(t *testing.T) {
	e := &MarkdownExtractor{}
	input := "# Chapter One\nIntro text.\n\n## Section A\nMore text.\n"
	res, err := e.Extract(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Sections, 2)
	assert.Equal(t, "Chapter One", res.Sections[0].Heading)
	assert.Contains(t, res.Sections[0].Content, "Intro text.")
	assert.Equal(t, "Section A", res.Sections[1].Heading)
	assert.Equal(t, 1, res.Sections[0].StartLine)
	assert.True(t, res.Sections[1].StartLine > res.Sections[0].EndLine)
}

func TestImageExtractor_NeverHasText(t *testing.T) {
	e := &ImageExtractor{}
	res, err := e.Extract(context.Background(), strings.NewReader("\x89PNG\r\n"))
	require.NoError(t, err)
	assert.False(t, res.HasExtractedText)
	assert.Empty(t, res.Sections)
}

func TestResult_FullText(t *testing.T) {
	res := &Result{Sections: []Section{{Content: "a"}, {Content: "b"}}}
	assert.Equal(t, "a\n\nb", res.FullText())
}
