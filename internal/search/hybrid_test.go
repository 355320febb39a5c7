package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignkb/internal/documents"
)

func chunkResult(id string) Result {
	return Result{Chunk: documents.Chunk{ID: id}}
}

func TestFuseRRF_UnionsAndRanksBySummedContribution(t *testing.T) {
	vec := []Result{chunkResult("a"), chunkResult("b")}
	kw := []Result{chunkResult("b"), chunkResult("c")}

	out := fuseRRF(vec, kw, 0.7, 0.3, 10)
	require.Len(t, out, 3)

	// "b" appears in both lists (rank 2 in vec, rank 1 in kw) so it should
	// score higher than "a" (vec rank 1 only) despite a's higher vector rank alone.
	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.Chunk.ID
	}
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "b")
	assert.Contains(t, ids, "c")
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestFuseRRF_PrefersVectorSideMetadataOnOverlap(t *testing.T) {
	vecRow := Result{Chunk: documents.Chunk{ID: "x", Section: "Vector Section"}}
	kwRow := Result{Chunk: documents.Chunk{ID: "x", Section: "Keyword Section"}}

	out := fuseRRF([]Result{vecRow}, []Result{kwRow}, 0.7, 0.3, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "Vector Section", out[0].Chunk.Section)
	require.NotNil(t, out[0].VectorScore)
	require.NotNil(t, out[0].KeywordScore)
}

func TestFuseRRF_RespectsLimit(t *testing.T) {
	vec := []Result{chunkResult("a"), chunkResult("b"), chunkResult("c")}
	out := fuseRRF(vec, nil, 1, 0, 2)
	assert.Len(t, out, 2)
}

func TestFuseRRF_MissingSideScoresZeroContribution(t *testing.T) {
	vec := []Result{chunkResult("a")}
	out := fuseRRF(vec, nil, 0.7, 0.3, 10)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].KeywordScore)
	assert.InDelta(t, 0.7*(1.0/61.0), out[0].Score, 1e-9)
}
