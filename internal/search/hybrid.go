package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"campaignkb/internal/kberrors"
)

const rrfK = 60

// HybridOptions configures a fused vector+keyword search.
type HybridOptions struct {
	Limit         int
	VectorWeight  float64
	KeywordWeight float64
	Filter        Filter
}

// HybridSearcher fuses vector and lexical retrieval by reciprocal rank.
// Grounded on Aman-CERP-amanmcp/pkg/searcher/fusion.go's RRF merge, adapted
// to the chunk/document result shape used here.
type HybridSearcher struct {
	vector  *VectorSearcher
	lexical *LexicalSearcher
}

func NewHybridSearcher(vector *VectorSearcher, lexical *LexicalSearcher) *HybridSearcher {
	return &HybridSearcher{vector: vector, lexical: lexical}
}

// SearchHybrid runs vector and keyword search concurrently, each with
// limit'=2*limit, fuses them by reciprocal rank, and returns the top limit.
func (h *HybridSearcher) SearchHybrid(ctx context.Context, query string, vector []float32, campaignID string, opts HybridOptions) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	vw, kw := opts.VectorWeight, opts.KeywordWeight
	if vw < 0 || kw < 0 || (vw == 0 && kw == 0) {
		return nil, kberrors.New(kberrors.ValidationError, "search.SearchHybrid", nil)
	}

	expanded := limit * 2
	var vecResults, kwResults []Result
	var vecErr, kwErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecResults, vecErr = h.vector.SearchByVector(gctx, vector, campaignID, expanded, opts.Filter)
		return nil // errors are captured, not propagated: a partial failure degrades to the surviving side
	})
	g.Go(func() error {
		kwResults, kwErr = h.lexical.SearchByKeyword(gctx, query, campaignID, expanded, opts.Filter)
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && kwErr != nil {
		return nil, kberrors.New(kberrors.DatabaseError, "search.SearchHybrid", vecErr)
	}
	if vecErr != nil || len(vecResults) == 0 {
		vw, kw = 0, 1
	}
	if kwErr != nil || len(kwResults) == 0 {
		vw, kw = 1, 0
	}
	if total := vw + kw; total > 0 {
		vw, kw = vw/total, kw/total
	}

	return fuseRRF(vecResults, kwResults, vw, kw, limit), nil
}

type fused struct {
	result       Result
	vectorScore  *float64
	keywordScore *float64
	score        float64
}

// fuseRRF merges vecResults and kwResults by reciprocal rank: each result's
// contribution from a source list is 1/(k+rank), rank being its 1-indexed
// position in that list. A chunk present in both lists keeps the vector-side
// row for its metadata (richer) but combines both contributions into score.
func fuseRRF(vecResults, kwResults []Result, vw, kw float64, limit int) []Result {
	byChunk := make(map[string]*fused)
	var order []string

	for i, r := range vecResults {
		rrf := 1.0 / float64(rrfK+i+1)
		id := r.Chunk.ID
		f := &fused{result: r}
		vs := rrf
		f.vectorScore = &vs
		byChunk[id] = f
		order = append(order, id)
	}
	for i, r := range kwResults {
		rrf := 1.0 / float64(rrfK+i+1)
		id := r.Chunk.ID
		if existing, ok := byChunk[id]; ok {
			ks := rrf
			existing.keywordScore = &ks
			continue
		}
		ks := rrf
		f := &fused{result: r, keywordScore: &ks}
		byChunk[id] = f
		order = append(order, id)
	}

	results := make([]fused, 0, len(order))
	for _, id := range order {
		f := byChunk[id]
		var vContrib, kContrib float64
		if f.vectorScore != nil {
			vContrib = *f.vectorScore
		}
		if f.keywordScore != nil {
			kContrib = *f.keywordScore
		}
		f.score = vw*vContrib + kw*kContrib
		results = append(results, *f)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]Result, len(results))
	for i, f := range results {
		r := f.result
		r.Score = f.score
		r.VectorScore = f.vectorScore
		r.KeywordScore = f.keywordScore
		out[i] = r
	}
	return out
}
