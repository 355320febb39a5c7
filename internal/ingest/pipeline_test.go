package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignkb/internal/config"
	"campaignkb/internal/documents"
	"campaignkb/internal/embedclient"
	"campaignkb/internal/kberrors"
	"campaignkb/internal/objectstore"
	"campaignkb/internal/worker"
)

type fakeDocStore struct {
	doc          *documents.Document
	insertedRows []documents.Chunk
	insertErr    error
	deleted      bool
}

func (f *fakeDocStore) GetDocument(ctx context.Context, id string) (*documents.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, kberrors.New(kberrors.NotFound, "fakeDocStore.GetDocument", nil)
	}
	cp := *f.doc
	return &cp, nil
}

func (f *fakeDocStore) UpdateDocumentState(ctx context.Context, d *documents.Document) error {
	cp := *d
	f.doc = &cp
	return nil
}

func (f *fakeDocStore) InsertChunks(ctx context.Context, campaignID, documentID string, chunks []documents.Chunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.insertedRows = chunks
	return nil
}

func (f *fakeDocStore) DeleteByDocument(ctx context.Context, documentID string) error {
	f.deleted = true
	f.insertedRows = nil
	return nil
}

func newTestPipeline(t *testing.T, store *fakeDocStore) *Pipeline {
	t.Helper()
	blobStore := objectstore.NewMemoryStore()
	facade := objectstore.NewFacade(blobStore)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{0.1, 0.2, 0.3}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	}))
	t.Cleanup(srv.Close)

	embedder := embedclient.New(config.EmbeddingConfig{
		BaseURL: srv.URL, Path: "/api/embed", Model: "test", Dimensions: 3, BatchSize: 10, Timeout: 5 * time.Second,
	})

	return New(facade, store, embedder, config.ChunkConfig{TargetTokens: 50, MaxTokens: 100})
}

func seedDocument(t *testing.T, facade *objectstore.Facade, store *fakeDocStore, content string, mime documents.MIME) *documents.Document {
	t.Helper()
	ctx := context.Background()
	key, err := facade.Put(ctx, "campaign1", "doc1", []byte(content), string(mime))
	require.NoError(t, err)

	doc, err := documents.New("campaign1", "Notes", "notes.txt", mime, int64(len(content)), key, "", nil, time.Now())
	require.NoError(t, err)
	store.doc = doc
	return doc
}

func TestPipeline_Run_HappyPathMarksDocumentReady(t *testing.T) {
	store := &fakeDocStore{}
	p := newTestPipeline(t, store)
	doc := seedDocument(t, p.blobs, store, "Paragraph one has some words.\n\nParagraph two has more words still.", documents.MIMEPlainText)

	result, err := p.Run(context.Background(), doc.ID, &worker.JobContext{JobID: "job1"})
	require.NoError(t, err)
	assert.Contains(t, result, "chunkCount")

	assert.Equal(t, documents.StateReady, store.doc.State)
	require.NotNil(t, store.doc.ChunkCount)
	assert.Equal(t, len(store.insertedRows), *store.doc.ChunkCount)
	assert.NotEmpty(t, store.insertedRows)
	for _, row := range store.insertedRows {
		assert.Equal(t, doc.ID, row.DocumentID)
		assert.Len(t, row.Embedding, 3)
	}
}

func TestPipeline_Run_UnsupportedMIMEFailsWithoutCleanup(t *testing.T) {
	store := &fakeDocStore{}
	p := newTestPipeline(t, store)
	doc := seedDocument(t, p.blobs, store, "hello", documents.MIMEPlainText)
	doc.MIMEType = "application/x-bogus"
	store.doc = doc

	_, err := p.Run(context.Background(), doc.ID, &worker.JobContext{JobID: "job1"})
	require.Error(t, err)
	assert.Equal(t, kberrors.UnsupportedMIME, kberrors.KindOf(err))
	assert.Equal(t, documents.StateFailed, store.doc.State)
	assert.False(t, store.deleted)
}

func TestPipeline_Run_StoreFailureTriggersCleanup(t *testing.T) {
	store := &fakeDocStore{insertErr: kberrors.New(kberrors.DatabaseError, "test", nil)}
	p := newTestPipeline(t, store)
	doc := seedDocument(t, p.blobs, store, "some content to chunk and embed", documents.MIMEPlainText)

	_, err := p.Run(context.Background(), doc.ID, &worker.JobContext{JobID: "job1"})
	require.Error(t, err)
	assert.Equal(t, documents.StateFailed, store.doc.State)
	assert.True(t, store.deleted)
}

func TestPipeline_Run_UnknownDocumentReturnsNotFound(t *testing.T) {
	store := &fakeDocStore{}
	p := newTestPipeline(t, store)

	_, err := p.Run(context.Background(), "missing", &worker.JobContext{JobID: "job1"})
	require.Error(t, err)
	assert.Equal(t, kberrors.NotFound, kberrors.KindOf(err))
}

func TestPipeline_Handler_DecodesFullPayloadContract(t *testing.T) {
	store := &fakeDocStore{}
	p := newTestPipeline(t, store)
	doc := seedDocument(t, p.blobs, store, "hello world", documents.MIMEPlainText)

	payload, err := json.Marshal(Payload{
		DocumentID: doc.ID,
		CampaignID: doc.CampaignID,
		StorageKey: doc.StorageKey,
		MIMEType:   string(doc.MIMEType),
	})
	require.NoError(t, err)

	result, err := p.Handler()(context.Background(), string(payload), &worker.JobContext{JobID: "job1"})
	require.NoError(t, err)
	assert.Contains(t, result, "chunkCount")
	assert.Equal(t, documents.StateReady, store.doc.State)
}

func TestPipeline_Run_CancelledContextFailsValidation(t *testing.T) {
	store := &fakeDocStore{}
	p := newTestPipeline(t, store)
	doc := seedDocument(t, p.blobs, store, "hello", documents.MIMEPlainText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, doc.ID, &worker.JobContext{JobID: "job1"})
	require.Error(t, err)
	assert.Equal(t, kberrors.Cancelled, kberrors.KindOf(err))
	assert.Equal(t, documents.StateFailed, store.doc.State)
}
