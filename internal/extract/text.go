package extract

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strings"
)

// PlainTextExtractor treats the whole input as a single unlabeled section.
type PlainTextExtractor struct{}

func (e *PlainTextExtractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := Normalize(string(data))
	endLine := 1
	if text != "" {
		endLine = strings.Count(text, "\n") + 1
	}
	return &Result{
		Sections:         []Section{{Content: text, StartLine: 1, EndLine: endLine}},
		HasExtractedText: strings.TrimSpace(text) != "",
	}, nil
}

var mdHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// MarkdownExtractor splits on ATX heading lines ("# Heading"), tracking the
// nearest preceding heading as each section's label — the same
// heading-boundary detection textsplitters/markdown.go uses for chunk
// sizing, reused here for section labeling instead.
type MarkdownExtractor struct{}

func (e *MarkdownExtractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := Normalize(string(data))

	var sections []Section
	var heading string
	var body strings.Builder
	sectionStart := 1
	lineNum := 0

	flush := func(endLine int) {
		content := strings.TrimSpace(body.String())
		if content != "" || heading != "" {
			sections = append(sections, Section{Heading: heading, Content: content, StartLine: sectionStart, EndLine: endLine})
		}
		body.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if m := mdHeadingRe.FindStringSubmatch(line); m != nil {
			flush(lineNum - 1)
			heading = m[2]
			sectionStart = lineNum
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush(lineNum)

	hasText := false
	for _, s := range sections {
		if strings.TrimSpace(s.Content) != "" {
			hasText = true
			break
		}
	}

	return &Result{Sections: sections, HasExtractedText: hasText}, nil
}

// ImageExtractor never produces text content: an image carries no prose for
// the chunker to split, but the pipeline still completes to ready with zero
// or near-zero chunks.
type ImageExtractor struct{}

func (e *ImageExtractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	return &Result{HasExtractedText: false}, nil
}
