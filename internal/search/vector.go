package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"campaignkb/internal/documents"
	"campaignkb/internal/kberrors"
)

// VectorSearcher runs nearest-neighbor chunk lookups against the pgvector
// embedding column.
type VectorSearcher struct {
	pool *pgxpool.Pool
}

func NewVectorSearcher(pool *pgxpool.Pool) *VectorSearcher {
	return &VectorSearcher{pool: pool}
}

// SearchByVector returns the limit chunks whose embeddings are closest (by
// cosine distance) to vector, scoped to campaignID and any filter. Score is
// 1-distance clipped to [0,1]; results are deterministic for identical
// inputs because cosine distance ties are broken by chunk id.
func (v *VectorSearcher) SearchByVector(ctx context.Context, vector []float32, campaignID string, limit int, f Filter) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	filterClause, filterArgs := buildDocFilterClause(f, 3)

	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.campaign_id, c.chunk_index, c.content, c.token_count,
			c.page, c.section, c.start_offset, c.end_offset,
			d.id, d.campaign_id, d.display_name, d.original_filename, d.mime_type, d.byte_size,
			d.storage_key, d.classification, d.tags, d.state, d.processing_error, d.chunk_count,
			d.created_at, d.updated_at,
			c.embedding <=> $1::vector AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.campaign_id = $2 %s
		ORDER BY distance ASC, c.id ASC
		LIMIT %d
	`, filterClause, limit)

	args := append([]any{pgvector.NewVector(vector), campaignID}, filterArgs...)

	rows, err := v.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, kberrors.New(kberrors.DatabaseError, "search.SearchByVector", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var c documents.Chunk
		var d documents.Document
		var mime, class, state string

		if err := rows.Scan(&c.ID, &c.DocumentID, &c.CampaignID, &c.ChunkIndex, &c.Content, &c.TokenCount,
			&c.Page, &c.Section, &c.StartOffset, &c.EndOffset,
			&d.ID, &d.CampaignID, &d.DisplayName, &d.OriginalFilename, &mime, &d.ByteSize,
			&d.StorageKey, &class, &d.Tags, &state, &d.ProcessingError, &d.ChunkCount,
			&d.CreatedAt, &d.UpdatedAt, &r.Distance); err != nil {
			return nil, kberrors.New(kberrors.DatabaseError, "search.SearchByVector", err)
		}
		d.MIMEType = documents.MIME(mime)
		d.Classification = documents.Classification(class)
		d.State = documents.State(state)

		r.Chunk = c
		r.Document = d
		r.Score = clip01(1 - r.Distance)
		out = append(out, r)
	}
	return out, rows.Err()
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// buildDocFilterClause renders Filter.DocumentIDs/DocumentTypes as a SQL
// fragment joined against the documents table, with args starting at
// argOffset (the positional args before argOffset are the caller's own).
func buildDocFilterClause(f Filter, argOffset int) (string, []any) {
	var clause string
	var args []any
	n := argOffset
	if len(f.DocumentIDs) > 0 {
		clause += fmt.Sprintf(" AND d.id = ANY($%d)", n)
		args = append(args, f.DocumentIDs)
		n++
	}
	if len(f.DocumentTypes) > 0 {
		clause += fmt.Sprintf(" AND d.classification = ANY($%d)", n)
		args = append(args, f.DocumentTypes)
		n++
	}
	return clause, args
}
