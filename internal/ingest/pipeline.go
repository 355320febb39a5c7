// Package ingest wires the extraction, chunking, embedding, and storage
// stages into the index-document job handler the worker pool runs. Grounded
// on sefii/engine.go's IngestDocument for the extract-then-chunk-then-embed
// ordering, adapted here into discrete, independently progress-reporting
// stages with document-state transitions and cleanup-on-failure around them.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campaignkb/internal/chunk"
	"campaignkb/internal/config"
	"campaignkb/internal/documents"
	"campaignkb/internal/embedclient"
	"campaignkb/internal/extract"
	"campaignkb/internal/kberrors"
	"campaignkb/internal/objectstore"
	"campaignkb/internal/worker"
)

// Payload is the index-document job's body. The wire shape is bit-exact
// where compatibility matters: documentId, campaignId, storageKey, and
// mimeType must all be present even though Run re-fetches the document row
// by id rather than trusting the other three fields, so that any consumer
// reading the queue directly (monitoring, a future language's worker) sees
// the full payload contract rather than an id-only stub.
type Payload struct {
	DocumentID string `json:"documentId"`
	CampaignID string `json:"campaignId"`
	StorageKey string `json:"storageKey"`
	MIMEType   string `json:"mimeType"`
}

// DocumentStore is the slice of chunkstore.Store the pipeline depends on.
// chunkstore.Store satisfies this; tests substitute an in-memory fake.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*documents.Document, error)
	UpdateDocumentState(ctx context.Context, d *documents.Document) error
	InsertChunks(ctx context.Context, campaignID, documentID string, chunks []documents.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Pipeline holds the collaborators the index-document handler needs.
type Pipeline struct {
	blobs      *objectstore.Facade
	chunkStore DocumentStore
	embedder   *embedclient.Client
	chunkOpts  chunk.Options
}

func New(blobs *objectstore.Facade, chunkStore DocumentStore, embedder *embedclient.Client, cfg config.ChunkConfig) *Pipeline {
	return &Pipeline{
		blobs:      blobs,
		chunkStore: chunkStore,
		embedder:   embedder,
		chunkOpts: chunk.Options{
			TargetTokens:  cfg.TargetTokens,
			OverlapTokens: cfg.OverlapTokens,
			MaxTokens:     cfg.MaxTokens,
		},
	}
}

// Handler adapts Run to the worker.Handler signature for registration with
// a worker.Pool bound to the index-document queue.
func (p *Pipeline) Handler() worker.Handler {
	return func(ctx context.Context, payload string, jc *worker.JobContext) (string, error) {
		var body Payload
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return "", kberrors.Wrap(kberrors.ValidationError, "ingest.Handler", err)
		}
		return p.Run(ctx, body.DocumentID, jc)
	}
}

// Run executes the full index-document pipeline for one document id.
func (p *Pipeline) Run(ctx context.Context, documentID string, jc *worker.JobContext) (string, error) {
	doc, err := p.chunkStore.GetDocument(ctx, documentID)
	if err != nil {
		return "", kberrors.Wrap(kberrors.NotFound, "ingest.validate", err)
	}

	if err := p.validate(ctx, doc); err != nil {
		p.failNoCleanup(ctx, doc, err)
		return "", err
	}
	jc.ReportProgress(5, "validated")

	now := time.Now()
	if err := doc.StartProcessing(now); err != nil {
		p.failNoCleanup(ctx, doc, err)
		return "", err
	}
	if err := p.chunkStore.UpdateDocumentState(ctx, doc); err != nil {
		wrapped := kberrors.Wrap(kberrors.DatabaseError, "ingest.mark-processing", err)
		p.failNoCleanup(ctx, doc, wrapped)
		return "", wrapped
	}
	jc.ReportProgress(8, "processing")

	extracted, err := p.extract(ctx, doc)
	if err != nil {
		p.failWithCleanup(ctx, doc, err)
		return "", err
	}
	jc.ReportProgress(30, "extracted")

	chunked, err := p.chunk(ctx, extracted)
	if err != nil {
		p.failWithCleanup(ctx, doc, err)
		return "", err
	}
	jc.ReportProgress(45, "chunked")

	vectors, err := p.embed(ctx, chunked, jc)
	if err != nil {
		p.failWithCleanup(ctx, doc, err)
		return "", err
	}
	jc.ReportProgress(85, "embedded")

	stored, err := p.store(ctx, doc, chunked, vectors)
	if err != nil {
		p.failWithCleanup(ctx, doc, err)
		return "", err
	}
	jc.ReportProgress(95, "stored")

	if err := doc.MarkReady(stored, now); err != nil {
		wrapped := kberrors.Wrap(kberrors.ValidationError, "ingest.finalize", err)
		p.failWithCleanup(ctx, doc, wrapped)
		return "", wrapped
	}
	if err := p.chunkStore.UpdateDocumentState(ctx, doc); err != nil {
		wrapped := kberrors.Wrap(kberrors.DatabaseError, "ingest.finalize", err)
		p.failWithCleanup(ctx, doc, wrapped)
		return "", wrapped
	}
	jc.ReportProgress(100, "ready")

	return fmt.Sprintf(`{"chunkCount":%d}`, stored), nil
}

func (p *Pipeline) validate(ctx context.Context, doc *documents.Document) error {
	if ctx.Err() != nil {
		return kberrors.New(kberrors.Cancelled, "ingest.validate", ctx.Err())
	}
	if !documents.IsAllowed(doc.MIMEType) {
		return kberrors.New(kberrors.UnsupportedMIME, "ingest.validate", nil)
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, doc *documents.Document) (*extract.Result, error) {
	if ctx.Err() != nil {
		return nil, kberrors.New(kberrors.Cancelled, "ingest.extract", ctx.Err())
	}
	reader, _, err := p.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.StorageError, "ingest.extract", err)
	}
	defer reader.Close()

	extractor, err := extract.ForMIME(doc.MIMEType)
	if err != nil {
		return nil, err
	}
	result, err := extractor.Extract(ctx, reader)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ParseError, "ingest.extract", err)
	}
	return result, nil
}

func (p *Pipeline) chunk(ctx context.Context, extracted *extract.Result) (*chunk.Result, error) {
	if ctx.Err() != nil {
		return nil, kberrors.New(kberrors.Cancelled, "ingest.chunk", ctx.Err())
	}
	// An image or a scanned document yields no sections and no text; it
	// completes with zero chunks rather than failing as empty content.
	if len(extracted.Sections) == 0 && !extracted.HasExtractedText {
		return &chunk.Result{}, nil
	}
	result, err := chunk.Run(extracted.Sections, p.chunkOpts)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) embed(ctx context.Context, chunked *chunk.Result, jc *worker.JobContext) ([][]float32, error) {
	if ctx.Err() != nil {
		return nil, kberrors.New(kberrors.Cancelled, "ingest.embed", ctx.Err())
	}
	if len(chunked.Chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunked.Chunks))
	for i, c := range chunked.Chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.Embed(ctx, texts, func(done, total int) {
		if total <= 0 {
			return
		}
		percent := 45 + (done*40)/total
		jc.ReportProgress(percent, fmt.Sprintf("embedded %d/%d chunks", done, total))
	})
	if err != nil {
		return nil, kberrors.Wrap(kberrors.EmbeddingFailed, "ingest.embed", err)
	}
	return vectors, nil
}

func (p *Pipeline) store(ctx context.Context, doc *documents.Document, chunked *chunk.Result, vectors [][]float32) (int, error) {
	if ctx.Err() != nil {
		return 0, kberrors.New(kberrors.Cancelled, "ingest.store", ctx.Err())
	}
	rows := make([]documents.Chunk, len(chunked.Chunks))
	for i, c := range chunked.Chunks {
		var embedding []float32
		if i < len(vectors) {
			embedding = vectors[i]
		}
		rows[i] = documents.Chunk{
			ID:          uuid.NewString(),
			DocumentID:  doc.ID,
			CampaignID:  doc.CampaignID,
			ChunkIndex:  c.ChunkIndex,
			Content:     c.Content,
			TokenCount:  c.TokenCount,
			Page:        c.Page,
			Section:     c.Section,
			Embedding:   embedding,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
		}
	}
	if err := p.chunkStore.InsertChunks(ctx, doc.CampaignID, doc.ID, rows); err != nil {
		return 0, kberrors.Wrap(kberrors.DatabaseError, "ingest.store", err)
	}
	return len(rows), nil
}

// failNoCleanup marks the document failed without attempting chunk
// deletion, for failures before mark-processing where no chunks could
// possibly exist yet.
func (p *Pipeline) failNoCleanup(ctx context.Context, doc *documents.Document, err error) {
	doc.MarkFailed(err.Error(), time.Now())
	if updateErr := p.chunkStore.UpdateDocumentState(ctx, doc); updateErr != nil {
		log.Error().Err(updateErr).Str("document_id", doc.ID).Msg("ingest_mark_failed_persist_error")
	}
}

// failWithCleanup marks the document failed and deletes any chunks it may
// already have, so a retried run never accumulates duplicates. A cleanup
// failure is logged but never replaces the original error.
func (p *Pipeline) failWithCleanup(ctx context.Context, doc *documents.Document, err error) {
	p.failNoCleanup(ctx, doc, err)
	if cleanupErr := p.chunkStore.DeleteByDocument(ctx, doc.ID); cleanupErr != nil {
		log.Error().Err(cleanupErr).Str("document_id", doc.ID).Msg("ingest_cleanup_failed")
	}
}
