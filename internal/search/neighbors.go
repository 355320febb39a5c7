package search

import (
	"context"
	"strings"

	"campaignkb/internal/chunkstore"
	"campaignkb/internal/documents"
)

// NeighborFetcher resolves neighbor keys to chunk rows. chunkstore.Store
// satisfies this; tests substitute a fake.
type NeighborFetcher interface {
	FetchNeighbors(ctx context.Context, pairs []chunkstore.NeighborKey) ([]documents.Chunk, error)
}

// DefaultNeighborWindow is the number of neighbors fetched on each side of a
// result when the window isn't overridden: exactly one.
const DefaultNeighborWindow = 1

// NeighborExpander enriches results with their adjacent chunks' content.
type NeighborExpander struct {
	store  NeighborFetcher
	window int
}

// NewNeighborExpander builds an expander that looks window chunks out on
// each side of a result (window <= 0 falls back to DefaultNeighborWindow),
// keeping the default behavior fixed at one neighbor each side while still
// letting a caller widen the context window.
func NewNeighborExpander(store NeighborFetcher, window int) *NeighborExpander {
	if window <= 0 {
		window = DefaultNeighborWindow
	}
	return &NeighborExpander{store: store, window: window}
}

// Expand returns a copy of results in which each result's content has its
// preceding and following chunks' content prepended/appended, fetched in a
// single round trip; the input slice is left unchanged.
// If the fetch fails, results are returned unchanged: expansion is
// best-effort and never fails the caller's search.
func (e *NeighborExpander) Expand(ctx context.Context, results []Result) []Result {
	if len(results) == 0 {
		return results
	}

	// byKey seeds from the original results' own content, so a neighbor
	// that's already one of the retrieved chunks is resolved without a
	// fetch; the fetch below only needs to cover the gaps.
	byKey := make(map[chunkstore.NeighborKey]string, len(results))
	for _, r := range results {
		byKey[chunkstore.NeighborKey{DocumentID: r.Chunk.DocumentID, ChunkIndex: r.Chunk.ChunkIndex}] = r.Chunk.Content
	}

	seen := make(map[chunkstore.NeighborKey]struct{})
	var want []chunkstore.NeighborKey
	for _, r := range results {
		idx := r.Chunk.ChunkIndex
		var candidates []int
		for k := 1; k <= e.window; k++ {
			candidates = append(candidates, idx+k)
			if idx-k >= 0 {
				candidates = append(candidates, idx-k)
			}
		}
		for _, c := range candidates {
			key := chunkstore.NeighborKey{DocumentID: r.Chunk.DocumentID, ChunkIndex: c}
			if _, ok := byKey[key]; ok {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			want = append(want, key)
		}
	}

	if len(want) > 0 {
		neighbors, err := e.store.FetchNeighbors(ctx, want)
		if err != nil {
			return results
		}
		for _, n := range neighbors {
			byKey[chunkstore.NeighborKey{DocumentID: n.DocumentID, ChunkIndex: n.ChunkIndex}] = n.Content
		}
	}

	out := make([]Result, len(results))
	for i, r := range results {
		idx := r.Chunk.ChunkIndex
		var parts []string
		for k := e.window; k >= 1; k-- {
			if idx-k < 0 {
				continue
			}
			if prev := byKey[chunkstore.NeighborKey{DocumentID: r.Chunk.DocumentID, ChunkIndex: idx - k}]; prev != "" {
				parts = append(parts, prev)
			}
		}
		parts = append(parts, r.Chunk.Content)
		for k := 1; k <= e.window; k++ {
			if next := byKey[chunkstore.NeighborKey{DocumentID: r.Chunk.DocumentID, ChunkIndex: idx + k}]; next != "" {
				parts = append(parts, next)
			}
		}
		r.Chunk.Content = strings.Join(parts, "\n\n")
		out[i] = r
	}
	return out
}
