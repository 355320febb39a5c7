// Package chunk implements the chunker: splitting extracted text into
// overlapping, token-bounded passages that preserve byte offsets and
// section/page origin. Grounded on
// textsplitters/boundary.go's groupByTarget — paragraph, then sentence,
// then whitespace fallback — generalized here to also track byte offsets
// into the source text and to enforce a hard per-chunk token ceiling, a
// capability boundary.go's splitter does not need.
package chunk

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"campaignkb/internal/extract"
	"campaignkb/internal/kberrors"
)

// Options configure a chunking run. Zero values fall back to sensible
// defaults (see config.ChunkConfig, which supplies the process-wide ones).
type Options struct {
	TargetTokens  int
	OverlapTokens int
	MaxTokens     int
}

func (o Options) withDefaults() Options {
	if o.TargetTokens <= 0 {
		o.TargetTokens = 400
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 600
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.OverlapTokens >= o.MaxTokens {
		o.OverlapTokens = o.MaxTokens / 4
	}
	return o
}

// Chunk is one emitted passage, not yet persisted or embedded.
type Chunk struct {
	ChunkIndex  int
	Content     string
	TokenCount  int
	Page        *int
	Section     string
	StartOffset int
	EndOffset   int
}

// Result is the product of a chunking run.
type Result struct {
	Chunks             []Chunk
	Strategy           string
	TotalTokens        int
	AverageChunkTokens float64
}

// EstimateTokens is a chars/4 heuristic: a rough but cheap estimate, good
// enough as long as it is used identically by the chunker and the embedding
// client's batching.
func EstimateTokens(s string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(s)) / 4))
}

var blankLineRe = regexp.MustCompile(`\n\s*\n+`)
var sentenceRe = regexp.MustCompile(`(?s)([^.!?]+[.!?]+|[^.!?]+$)`)

// Run chunks every section's content independently, so a section's heading
// and page always travel with the chunks it produced, then renumbers
// chunkIndex densely across the whole document.
func Run(sections []extract.Section, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	anyContent := false
	for _, s := range sections {
		if strings.TrimSpace(s.Content) != "" {
			anyContent = true
			break
		}
	}
	if !anyContent {
		return nil, kberrors.New(kberrors.EmptyContent, "chunk.Run", nil)
	}

	var all []Chunk
	docOffset := 0
	for _, s := range sections {
		if s.Content == "" {
			continue
		}
		units := atomicUnits(s.Content, opts.MaxTokens)
		groups := groupUnits(units, opts)
		for _, g := range groups {
			all = append(all, Chunk{
				Content:     g.text,
				TokenCount:  EstimateTokens(g.text),
				Page:        s.Page,
				Section:     s.Heading,
				StartOffset: docOffset + g.start,
				EndOffset:   docOffset + g.end,
			})
		}
		docOffset += len(s.Content) + 2 // matches extract.Result.FullText's "\n\n" join
	}

	total := 0
	for i := range all {
		all[i].ChunkIndex = i
		total += all[i].TokenCount
	}

	avg := 0.0
	if len(all) > 0 {
		avg = float64(total) / float64(len(all))
	}

	return &Result{
		Chunks:             all,
		Strategy:           "paragraph-sentence-whitespace",
		TotalTokens:        total,
		AverageChunkTokens: avg,
	}, nil
}

type span struct {
	text       string
	start, end int
}

// atomicUnits splits text into pieces each individually within maxTokens,
// preferring paragraph boundaries, falling back to sentences, then
// whitespace-delimited word groups — never splitting inside a word.
func atomicUnits(text string, maxTokens int) []span {
	var out []span
	for _, p := range splitWithOffsets(text, blankLineRe) {
		if EstimateTokens(p.text) <= maxTokens {
			out = append(out, p)
			continue
		}
		for _, s := range splitWithOffsets(p.text, sentenceRe) {
			abs := span{text: s.text, start: p.start + s.start, end: p.start + s.end}
			if EstimateTokens(s.text) <= maxTokens {
				out = append(out, abs)
				continue
			}
			out = append(out, splitByWords(abs, maxTokens)...)
		}
	}
	return out
}

// splitWithOffsets splits text by pattern and returns each non-empty
// trimmed piece with its byte offset range in text. For blankLineRe the
// matches are separators between pieces; for sentenceRe each match is
// itself a piece (a sentence including its terminator).
func splitWithOffsets(text string, pattern *regexp.Regexp) []span {
	var out []span
	matches := pattern.FindAllStringIndex(text, -1)
	if matches == nil {
		t := strings.TrimSpace(text)
		if t == "" {
			return nil
		}
		start := strings.Index(text, t)
		return []span{{text: t, start: start, end: start + len(t)}}
	}

	if pattern == blankLineRe {
		pos := 0
		for _, m := range matches {
			piece := text[pos:m[0]]
			if t := strings.TrimSpace(piece); t != "" {
				start := pos + strings.Index(piece, t)
				out = append(out, span{text: t, start: start, end: start + len(t)})
			}
			pos = m[1]
		}
		if piece := text[pos:]; strings.TrimSpace(piece) != "" {
			t := strings.TrimSpace(piece)
			start := pos + strings.Index(piece, t)
			out = append(out, span{text: t, start: start, end: start + len(t)})
		}
		return out
	}

	// Sentence pattern: each match IS a sentence (inclusive of its
	// terminator), rather than a separator between pieces.
	for _, m := range matches {
		piece := text[m[0]:m[1]]
		if t := strings.TrimSpace(piece); t != "" {
			start := m[0] + strings.Index(piece, t)
			out = append(out, span{text: t, start: start, end: start + len(t)})
		}
	}
	return out
}

// splitByWords breaks s into whitespace-delimited word groups, each within
// maxTokens, the last-resort fallback that still never splits a word.
func splitByWords(s span, maxTokens int) []span {
	words := strings.Fields(s.text)
	if len(words) == 0 {
		return nil
	}

	var out []span
	var cur strings.Builder
	groupStart := s.start
	cursor := s.start

	flush := func(end int) {
		if cur.Len() == 0 {
			return
		}
		out = append(out, span{text: cur.String(), start: groupStart, end: end})
		cur.Reset()
	}

	for _, w := range words {
		idx := strings.Index(s.text[cursor-s.start:], w)
		wordStart := cursor + idx
		wordEnd := wordStart + len(w)

		candidate := w
		if cur.Len() > 0 {
			candidate = cur.String() + " " + w
		}
		if EstimateTokens(candidate) > maxTokens && cur.Len() > 0 {
			flush(cursor)
			groupStart = wordStart
			cur.WriteString(w)
		} else {
			if cur.Len() > 0 {
				cur.WriteString(" ")
			}
			cur.WriteString(w)
		}
		cursor = wordEnd
	}
	flush(cursor)
	return out
}

type group struct {
	text       string
	start, end int
}

// groupUnits packs atomic units into chunks targeting opts.TargetTokens
// without exceeding opts.MaxTokens, carrying the trailing units of each
// chunk forward as whole-unit overlap into the next (never a mid-word or
// mid-unit cut, unlike boundary.go's character-level clipOverlapTail).
func groupUnits(units []span, opts Options) []group {
	if len(units) == 0 {
		return nil
	}

	var groups []group
	var cur []span
	curTokens := 0
	pendingNew := false

	flush := func() {
		if len(cur) == 0 || !pendingNew {
			return
		}
		texts := make([]string, len(cur))
		for i, u := range cur {
			texts[i] = u.text
		}
		groups = append(groups, group{
			text:  strings.Join(texts, "\n"),
			start: cur[0].start,
			end:   cur[len(cur)-1].end,
		})
	}

	for _, u := range units {
		t := EstimateTokens(u.text)
		if curTokens > 0 && curTokens+t > opts.MaxTokens {
			flush()
			cur = overlapTail(cur, opts.OverlapTokens)
			curTokens = 0
			pendingNew = false
			for _, c := range cur {
				curTokens += EstimateTokens(c.text)
			}
			if curTokens+t > opts.MaxTokens {
				cur = nil
				curTokens = 0
			}
		}
		cur = append(cur, u)
		curTokens += t
		pendingNew = true
		if curTokens >= opts.TargetTokens {
			flush()
			cur = overlapTail(cur, opts.OverlapTokens)
			curTokens = 0
			pendingNew = false
			for _, c := range cur {
				curTokens += EstimateTokens(c.text)
			}
		}
	}
	flush()
	return groups
}

// overlapTail returns the trailing units of cur whose combined token count
// stays within overlapTokens, to seed the next chunk.
func overlapTail(cur []span, overlapTokens int) []span {
	if overlapTokens <= 0 || len(cur) == 0 {
		return nil
	}
	var tail []span
	tokens := 0
	for i := len(cur) - 1; i >= 0; i-- {
		t := EstimateTokens(cur[i].text)
		if tokens+t > overlapTokens {
			break
		}
		tail = append([]span{cur[i]}, tail...)
		tokens += t
	}
	return tail
}
