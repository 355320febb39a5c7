package documents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignkb/internal/kberrors"
)

func TestNew_RejectsNonWhitelistedMIME(t *testing.T) {
	_, err := New("campaign-1", "Spellbook", "spellbook.exe", MIME("application/x-msdownload"), 10, "key", "", nil, time.Now())
	require.Error(t, err)
	assert.Equal(t, kberrors.UnsupportedMIME, kberrors.KindOf(err))
}

func TestNew_InfersClassification(t *testing.T) {
	doc, err := New("campaign-1", "Map of Phandalin", "map.png", MIMEPNG, 10, "key", "", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ClassImage, doc.Classification)

	doc2, err := New("campaign-1", "Session Notes", "notes.txt", MIMEPlainText, 10, "key", "", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ClassNotes, doc2.Classification)
}

func TestDocument_Lifecycle(t *testing.T) {
	now := time.Now()
	doc, err := New("campaign-1", "Rulebook", "rules.pdf", MIMEPDF, 10, "key", ClassRulebook, nil, now)
	require.NoError(t, err)
	assert.Equal(t, StatePending, doc.State)
	assert.Nil(t, doc.ChunkCount)

	require.NoError(t, doc.StartProcessing(now))
	assert.Equal(t, StateProcessing, doc.State)

	require.NoError(t, doc.MarkReady(3, now))
	assert.Equal(t, StateReady, doc.State)
	require.NotNil(t, doc.ChunkCount)
	assert.Equal(t, 3, *doc.ChunkCount)
	assert.Empty(t, doc.ProcessingError)
}

func TestDocument_MarkFailed_ClearsChunkCount(t *testing.T) {
	now := time.Now()
	doc, err := New("campaign-1", "Rulebook", "rules.pdf", MIMEPDF, 10, "key", ClassRulebook, nil, now)
	require.NoError(t, err)
	require.NoError(t, doc.StartProcessing(now))

	doc.MarkFailed("Embedding endpoint returned 503", now)
	assert.Equal(t, StateFailed, doc.State)
	assert.Nil(t, doc.ChunkCount)
	assert.Contains(t, doc.ProcessingError, "Embedding")
}

func TestDocument_CannotSkipProcessing(t *testing.T) {
	now := time.Now()
	doc, err := New("campaign-1", "Rulebook", "rules.pdf", MIMEPDF, 10, "key", ClassRulebook, nil, now)
	require.NoError(t, err)

	err = doc.MarkReady(1, now)
	require.Error(t, err)
	assert.Equal(t, kberrors.ValidationError, kberrors.KindOf(err))
}
