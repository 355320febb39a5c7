// Package search implements chunk retrieval: vector similarity,
// full-text keyword search, their reciprocal-rank fusion, and
// best-effort neighbor expansion of results. Grounded on
// internal/sefii/engine.go's pgvector query shape and
// Aman-CERP-amanmcp/pkg/searcher/fusion.go's RRF merge.
package search

import (
	"campaignkb/internal/documents"
)

// Result is one retrieved chunk, enriched with its owning document's
// metadata and whichever retrieval scores produced it.
type Result struct {
	Chunk        documents.Chunk
	Document     documents.Document
	Distance     float64
	Score        float64
	Rank         float64
	VectorScore  *float64
	KeywordScore *float64
}

// Filter narrows a search to a subset of a campaign's documents.
type Filter struct {
	DocumentIDs   []string
	DocumentTypes []string
	Language      string
}
