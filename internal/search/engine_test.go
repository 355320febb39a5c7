package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, onBatchDone func(done, total int)) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vec}, nil
}

type fakeHybrid struct {
	calls      int
	lastVector []float32
	results    []Result
	err        error
}

func (f *fakeHybrid) SearchHybrid(ctx context.Context, query string, vector []float32, campaignID string, opts HybridOptions) ([]Result, error) {
	f.calls++
	f.lastVector = vector
	return f.results, f.err
}

func TestHybridEngine_CachesRepeatedQueryEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 2, 3}}
	hybrid := &fakeHybrid{results: []Result{{Score: 0.5}}}
	engine := NewHybridEngine(hybrid, embedder, 0)

	_, err := engine.Search(context.Background(), "goblin weaknesses", "camp-1", HybridOptions{Limit: 5})
	require.NoError(t, err)
	_, err = engine.Search(context.Background(), "goblin weaknesses", "camp-1", HybridOptions{Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, 2, hybrid.calls)
	assert.Equal(t, []float32{1, 2, 3}, hybrid.lastVector)
}

func TestHybridEngine_DistinctQueriesEachEmbed(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1}}
	hybrid := &fakeHybrid{}
	engine := NewHybridEngine(hybrid, embedder, 0)

	_, err := engine.Search(context.Background(), "query one", "camp-1", HybridOptions{Limit: 5})
	require.NoError(t, err)
	_, err = engine.Search(context.Background(), "query two", "camp-1", HybridOptions{Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.calls)
}

func TestHybridEngine_EvictsOldestEntryPastBound(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1}}
	hybrid := &fakeHybrid{}
	engine := NewHybridEngine(hybrid, embedder, 1)

	_, err := engine.Search(context.Background(), "first", "camp-1", HybridOptions{Limit: 5})
	require.NoError(t, err)
	_, err = engine.Search(context.Background(), "second", "camp-1", HybridOptions{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls)

	// "first" was evicted to make room for "second", so re-querying it embeds again.
	_, err = engine.Search(context.Background(), "first", "camp-1", HybridOptions{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.calls)
}

func TestHybridEngine_EmbedErrorPropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: assertError{"embedding endpoint down"}}
	hybrid := &fakeHybrid{}
	engine := NewHybridEngine(hybrid, embedder, 0)

	_, err := engine.Search(context.Background(), "query", "camp-1", HybridOptions{Limit: 5})
	require.Error(t, err)
	assert.Equal(t, 0, hybrid.calls)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
