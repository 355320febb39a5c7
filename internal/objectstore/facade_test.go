package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacade_PutIsContentAddressedAndScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	facade := NewFacade(NewMemoryStore())

	content := []byte("the lost mines of phandelver")
	key1, err := facade.Put(ctx, "campaign-a", "doc-1", content, "text/plain")
	require.NoError(t, err)
	assert.Contains(t, key1, "campaign-a/doc-1/")

	// Re-putting identical content for the same document returns the same key.
	key2, err := facade.Put(ctx, "campaign-a", "doc-1", content, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// Different campaign/document scope produces a different key even for
	// identical bytes.
	key3, err := facade.Put(ctx, "campaign-b", "doc-1", content, "text/plain")
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)

	rc, _, err := facade.Get(ctx, key1)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(string(data), string(content)))
}

func TestFacade_DeleteAndSign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	facade := NewFacade(NewMemoryStore())

	key, err := facade.Put(ctx, "campaign-a", "doc-1", []byte("data"), "text/plain")
	require.NoError(t, err)

	url, err := facade.Sign(ctx, key, 5*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	require.NoError(t, facade.Delete(ctx, key))

	_, _, err = facade.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
