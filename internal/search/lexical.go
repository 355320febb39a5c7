package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"campaignkb/internal/documents"
	"campaignkb/internal/kberrors"
)

// LexicalSearcher runs full-text chunk lookups against the generated
// tsvector column.
type LexicalSearcher struct {
	pool *pgxpool.Pool
}

func NewLexicalSearcher(pool *pgxpool.Pool) *LexicalSearcher {
	return &LexicalSearcher{pool: pool}
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "it": {}, "for": {}, "on": {}, "with": {}, "as": {}, "at": {}, "by": {},
	"be": {}, "this": {}, "that": {}, "are": {}, "was": {}, "were": {},
}

// SearchByKeyword ranks chunks by tsvector relevance using an AND-first,
// OR-fallback strategy: the full query is tried conjunctively first; if
// fewer than 3 rows come back, a disjunctive query built from filtered
// tokens is tried and the variant with more rows wins (AND on ties).
func (l *LexicalSearcher) SearchByKeyword(ctx context.Context, query, campaignID string, limit int, f Filter) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	lang := f.Language
	if lang == "" {
		lang = "english"
	}

	andResults, err := l.run(ctx, query, lang, campaignID, limit, f, "plainto_tsquery")
	if err != nil {
		return nil, err
	}
	if len(andResults) >= 3 {
		return andResults, nil
	}

	orQuery := buildDisjunctiveQuery(query)
	orResults, err := l.run(ctx, orQuery, lang, campaignID, limit, f, "to_tsquery")
	if err != nil {
		return andResults, nil // AND results still usable even if the fallback query errors
	}

	if len(orResults) > len(andResults) {
		return orResults, nil
	}
	return andResults, nil
}

func (l *LexicalSearcher) run(ctx context.Context, query, lang, campaignID string, limit int, f Filter, queryFn string) ([]Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	filterClause, filterArgs := buildDocFilterClause(f, 4)

	stmt := fmt.Sprintf(`
		SELECT c.id, c.document_id, c.campaign_id, c.chunk_index, c.content, c.token_count,
			c.page, c.section, c.start_offset, c.end_offset,
			d.id, d.campaign_id, d.display_name, d.original_filename, d.mime_type, d.byte_size,
			d.storage_key, d.classification, d.tags, d.state, d.processing_error, d.chunk_count,
			d.created_at, d.updated_at,
			ts_rank(c.ts, %s(to_regconfig($1), $2)) AS rank
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.campaign_id = $3
			AND c.ts @@ %s(to_regconfig($1), $2)
			%s
		ORDER BY rank DESC, c.id ASC
		LIMIT %d
	`, queryFn, queryFn, filterClause, limit)

	args := append([]any{lang, q, campaignID}, filterArgs...)

	rows, err := l.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, kberrors.New(kberrors.DatabaseError, "search.SearchByKeyword", err)
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
			&d.CreatedAt, &d.UpdatedAt, &r.Rank); err != nil {
			return nil, kberrors.New(kberrors.DatabaseError, "search.SearchByKeyword", err)
		}
		d.MIMEType = documents.MIME(mime)
		d.Classification = documents.Classification(class)
		d.State = documents.State(state)

		r.Chunk = c
		r.Document = d
		out = append(out, r)
	}
	return out, rows.Err()
}

// buildDisjunctiveQuery tokenizes query, discards tokens of length <= 2 and
// stop words, and joins the survivors with " | " for to_tsquery. If nothing
// survives, it falls back to the raw query string.
func buildDisjunctiveQuery(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	var kept []string
	for _, w := range fields {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return query
	}
	return strings.Join(kept, " | ")
}
