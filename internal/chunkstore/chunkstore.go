// Package chunkstore persists Documents and their Chunks to Postgres with a
// pgvector embedding column, and serves the neighbor lookups that search
// fusion depends on. Grounded on
// internal/persistence/databases/postgres_vector.go and postgres_search.go
// for the bootstrap-schema and pgxpool query style, and on
// internal/sefii/engine.go for pgvector.NewVector usage.
package chunkstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"campaignkb/internal/config"
	"campaignkb/internal/documents"
	"campaignkb/internal/kberrors"
)

// Store is the Postgres-backed chunk and document store.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// Open connects to Postgres, bootstraps the schema, and returns a Store.
func Open(ctx context.Context, cfg config.DatabaseConfig, dimensions int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, kberrors.New(kberrors.DatabaseError, "chunkstore.Open", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, kberrors.New(kberrors.DatabaseError, "chunkstore.Open", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, kberrors.New(kberrors.DatabaseError, "chunkstore.Open", err)
	}

	s := &Store{pool: pool, dimensions: dimensions}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying connection pool so the vector and lexical
// searchers, which run their own hand-tuned SQL, can share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			byte_size BIGINT NOT NULL,
			storage_key TEXT NOT NULL,
			classification TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			state TEXT NOT NULL,
			processing_error TEXT NOT NULL DEFAULT '',
			chunk_count INT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_campaign_idx ON documents (campaign_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			campaign_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			token_count INT NOT NULL,
			page INT,
			section TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			start_offset INT NOT NULL,
			end_offset INT NOT NULL,
			ts tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(content, ''))) STORED,
			UNIQUE (document_id, chunk_index)
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS chunks_campaign_idx ON chunks (campaign_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_ts_idx ON chunks USING GIN (ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return kberrors.New(kberrors.DatabaseError, "chunkstore.bootstrap", err)
		}
	}
	return nil
}

// InsertDocument creates the document row.
func (s *Store) InsertDocument(ctx context.Context, d *documents.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, campaign_id, display_name, original_filename, mime_type, byte_size,
			storage_key, classification, tags, state, processing_error, chunk_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, d.ID, d.CampaignID, d.DisplayName, d.OriginalFilename, string(d.MIMEType), d.ByteSize,
		d.StorageKey, string(d.Classification), d.Tags, string(d.State), d.ProcessingError, d.ChunkCount, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return kberrors.New(kberrors.DatabaseError, "chunkstore.InsertDocument", err)
	}
	return nil
}

// UpdateDocumentState persists a document's mutable lifecycle fields.
func (s *Store) UpdateDocumentState(ctx context.Context, d *documents.Document) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET state=$2, processing_error=$3, chunk_count=$4, updated_at=$5
		WHERE id=$1
	`, d.ID, string(d.State), d.ProcessingError, d.ChunkCount, d.UpdatedAt)
	if err != nil {
		return kberrors.New(kberrors.DatabaseError, "chunkstore.UpdateDocumentState", err)
	}
	return nil
}

// GetDocument fetches one document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*documents.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, campaign_id, display_name, original_filename, mime_type, byte_size,
			storage_key, classification, tags, state, processing_error, chunk_count, created_at, updated_at
		FROM documents WHERE id=$1
	`, id)

	var d documents.Document
	var mime, class, state string
	if err := row.Scan(&d.ID, &d.CampaignID, &d.DisplayName, &d.OriginalFilename, &mime, &d.ByteSize,
		&d.StorageKey, &class, &d.Tags, &state, &d.ProcessingError, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, kberrors.New(kberrors.NotFound, "chunkstore.GetDocument", err)
		}
		return nil, kberrors.New(kberrors.DatabaseError, "chunkstore.GetDocument", err)
	}
	d.MIMEType = documents.MIME(mime)
	d.Classification = documents.Classification(class)
	d.State = documents.State(state)
	return &d, nil
}

// InsertChunks atomically replaces every chunk belonging to documentID: any
// existing chunks are deleted first, then the new set is inserted, all in
// one transaction, so a partial failure leaves the document without chunks
// rather than with a mixed old/new set.
func (s *Store) InsertChunks(ctx context.Context, campaignID, documentID string, chunks []documents.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return kberrors.New(kberrors.DatabaseError, "chunkstore.InsertChunks", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return kberrors.New(kberrors.DatabaseError, "chunkstore.InsertChunks", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, document_id, campaign_id, chunk_index, content, token_count,
				page, section, embedding, start_offset, end_offset)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, c.ID, documentID, campaignID, c.ChunkIndex, c.Content, c.TokenCount,
			c.Page, c.Section, pgvector.NewVector(c.Embedding), c.StartOffset, c.EndOffset)
	}
	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return kberrors.New(kberrors.DatabaseError, "chunkstore.InsertChunks", err)
		}
	}
	if err := br.Close(); err != nil {
		return kberrors.New(kberrors.DatabaseError, "chunkstore.InsertChunks", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return kberrors.New(kberrors.DatabaseError, "chunkstore.InsertChunks", err)
	}
	return nil
}

// DeleteByDocument removes every chunk belonging to documentID. Deleting a
// document with no chunks succeeds.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1`, documentID); err != nil {
		return kberrors.New(kberrors.DatabaseError, "chunkstore.DeleteByDocument", err)
	}
	return nil
}

// ReconstructDocument reassembles a document's text from its stored chunks,
// ordered by chunk_index and double-newline joined. Text the chunker carried
// into a chunk as overlap appears once per chunk that holds it, and breaks
// inside a chunk are the chunker's single newlines. Useful for downstream features (re-chunking
// after a chunker upgrade, a "show full source" view) without re-fetching and
// re-extracting the original blob.
func (s *Store) ReconstructDocument(ctx context.Context, documentID string) (string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content FROM chunks WHERE document_id=$1 ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return "", kberrors.New(kberrors.DatabaseError, "chunkstore.ReconstructDocument", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", kberrors.New(kberrors.DatabaseError, "chunkstore.ReconstructDocument", err)
		}
		parts = append(parts, content)
	}
	if err := rows.Err(); err != nil {
		return "", kberrors.New(kberrors.DatabaseError, "chunkstore.ReconstructDocument", err)
	}
	if len(parts) == 0 {
		return "", kberrors.New(kberrors.NotFound, "chunkstore.ReconstructDocument", nil)
	}
	return strings.Join(parts, "\n\n"), nil
}

// NeighborKey identifies one chunk by its owning document and dense index.
type NeighborKey struct {
	DocumentID string
	ChunkIndex int
}

// FetchNeighbors resolves a set of (documentId, chunkIndex) pairs to their
// chunk rows in a single round trip, skipping pairs that don't exist.
func (s *Store) FetchNeighbors(ctx context.Context, pairs []NeighborKey) ([]documents.Chunk, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	docIDs := make([]string, len(pairs))
	idxs := make([]int32, len(pairs))
	for i, p := range pairs {
		docIDs[i] = p.DocumentID
		idxs[i] = int32(p.ChunkIndex)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.campaign_id, c.chunk_index, c.content, c.token_count,
			c.page, c.section, c.start_offset, c.end_offset
		FROM chunks c
		JOIN unnest($1::text[], $2::int[]) AS want(document_id, chunk_index)
			ON c.document_id = want.document_id AND c.chunk_index = want.chunk_index
	`, docIDs, idxs)
	if err != nil {
		return nil, kberrors.New(kberrors.DatabaseError, "chunkstore.FetchNeighbors", err)
	}
	defer rows.Close()

	var out []documents.Chunk
	for rows.Next() {
		var c documents.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.CampaignID, &c.ChunkIndex, &c.Content, &c.TokenCount,
			&c.Page, &c.Section, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, kberrors.New(kberrors.DatabaseError, "chunkstore.FetchNeighbors", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
