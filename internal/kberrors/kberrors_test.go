package kberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesKind(t *testing.T) {
	base := New(NotFound, "chunkstore.fetch", errors.New("no rows"))
	wrapped := Wrap(Unknown, "ingest.stage", base)
	require.Equal(t, NotFound, KindOf(wrapped))
}

func TestWrap_NilCause(t *testing.T) {
	require.NoError(t, Wrap(StorageError, "op", nil))
}

func TestIs(t *testing.T) {
	err := New(Timeout, "embed.call", errors.New("deadline exceeded"))
	require.True(t, Is(err, Timeout))
	require.False(t, Is(err, DatabaseError))
}

func TestKindOf_PlainError(t *testing.T) {
	require.Equal(t, Unknown, KindOf(errors.New("plain")))
}
