package embedclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignkb/internal/config"
	"campaignkb/internal/kberrors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, config.EmbeddingConfig) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.EmbeddingConfig{
		BaseURL:    srv.URL,
		Path:       "/api/embed",
		Model:      "test-embed",
		Dimensions: 3,
		BatchSize:  2,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}
	return srv, cfg
}

func TestEmbed_HappyPath(t *testing.T) {
	_, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)
		assert.Equal(t, "test-embed", req.Model)

		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{1, 2, 3}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vectors})
	})

	c := New(cfg)
	out, err := c.Embed(t.Context(), []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.Equal(t, []float32{1, 2, 3}, v)
	}
}

func TestEmbed_SplitsIntoBatches(t *testing.T) {
	var batchSizes []int
	_, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batchSizes = append(batchSizes, len(req.Input))
		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{0, 0, 0}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vectors})
	})

	c := New(cfg)
	out, err := c.Embed(t.Context(), []string{"a", "b", "c", "d", "e"}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 5)
	assert.Equal(t, []int{2, 2, 1}, batchSizes)
}

func TestEmbed_EmptyInputFails(t *testing.T) {
	c := New(config.EmbeddingConfig{})
	_, err := c.Embed(t.Context(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, kberrors.EmptyContent, kberrors.KindOf(err))
}

func TestEmbed_DimensionMismatchFails(t *testing.T) {
	_, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2}}})
	})
	c := New(cfg)
	_, err := c.Embed(t.Context(), []string{"a"}, nil)
	require.Error(t, err)
	assert.Equal(t, kberrors.EmbeddingFailed, kberrors.KindOf(err))
}

func TestEmbed_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	_, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	})
	cfg.MaxRetries = 3

	c := New(cfg)
	out, err := c.Embed(t.Context(), []string{"a"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEmbed_NonRetryable4xxFailsImmediately(t *testing.T) {
	var calls int32
	_, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad model"))
	})

	c := New(cfg)
	_, err := c.Embed(t.Context(), []string{"a"}, nil)
	require.Error(t, err)
	assert.Equal(t, kberrors.EmbeddingFailed, kberrors.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbed_ExhaustsRetriesOnPersistent5xx(t *testing.T) {
	var calls int32
	_, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	cfg.MaxRetries = 2

	c := New(cfg)
	_, err := c.Embed(t.Context(), []string{"a"}, nil)
	require.Error(t, err)
	assert.Equal(t, kberrors.EmbeddingFailed, kberrors.KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls)) // initial + 2 retries
}

func TestEmbed_ProgressCallback(t *testing.T) {
	_, cfg := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{0, 0, 0}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vectors})
	})

	var progress []int
	c := New(cfg)
	_, err := c.Embed(t.Context(), []string{"a", "b", "c"}, func(done, total int) {
		progress = append(progress, done)
		assert.Equal(t, 3, total)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, progress)
}

func TestEmbedRequest_MarshalsTruncateTrue(t *testing.T) {
	b, err := json.Marshal(embedRequest{Model: "m", Input: []string{"x"}, Truncate: true})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `"truncate":true`))
}
