package search

import (
	"context"
	"sync"

	"campaignkb/internal/kberrors"
)

// defaultQueryCacheEntries bounds HybridEngine's query-embedding cache. A
// long-lived service cannot hold every distinct query string forever, so the
// oldest entry is evicted once the bound is reached.
const defaultQueryCacheEntries = 256

// QueryEmbedder produces an embedding vector for free-form query text.
// embedclient.Client satisfies this.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string, onBatchDone func(done, total int)) ([][]float32, error)
}

// Hybrid runs a fused vector+keyword search given a precomputed query
// vector. HybridSearcher satisfies this.
type Hybrid interface {
	SearchHybrid(ctx context.Context, query string, vector []float32, campaignID string, opts HybridOptions) ([]Result, error)
}

// HybridEngine wraps a Hybrid searcher with a bounded, FIFO-evicted
// map+mutex cache of query-string to embedding, so repeated searches of the
// same query text (e.g. a user refining filters on one question) embed it
// only once. Grounded on sefii.Engine's getQueryEmbedding.
type HybridEngine struct {
	hybrid     Hybrid
	embedder   QueryEmbedder
	maxEntries int

	mu    sync.Mutex
	cache map[string][]float32
	order []string
}

// NewHybridEngine builds a HybridEngine. maxEntries <= 0 uses
// defaultQueryCacheEntries.
func NewHybridEngine(hybrid Hybrid, embedder QueryEmbedder, maxEntries int) *HybridEngine {
	if maxEntries <= 0 {
		maxEntries = defaultQueryCacheEntries
	}
	return &HybridEngine{
		hybrid:     hybrid,
		embedder:   embedder,
		maxEntries: maxEntries,
		cache:      make(map[string][]float32),
	}
}

// Search embeds query (serving a cached vector when available) and runs a
// fused search with it.
func (e *HybridEngine) Search(ctx context.Context, query, campaignID string, opts HybridOptions) ([]Result, error) {
	vector, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.hybrid.SearchHybrid(ctx, query, vector, campaignID, opts)
}

func (e *HybridEngine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	e.mu.Lock()
	if v, ok := e.cache[query]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	vectors, err := e.embedder.Embed(ctx, []string{query}, nil)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, kberrors.New(kberrors.EmbeddingFailed, "search.HybridEngine.embedQuery", nil)
	}
	vector := vectors[0]

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cache[query]; !ok {
		if len(e.order) >= e.maxEntries {
			oldest := e.order[0]
			e.order = e.order[1:]
			delete(e.cache, oldest)
		}
		e.cache[query] = vector
		e.order = append(e.order, query)
	}
	return vector, nil
}
