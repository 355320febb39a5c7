package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Facade is the C1 Storage Facade: a thin content-addressed get/put/delete/
// sign layer over a BlobStore, scoped by (campaign, object). Keys are
// derived from the campaign id, document id, and the content's sha256 sum,
// so re-uploading identical bytes for the same document is a no-op write
// and the storage key never needs to be invented by the caller.
type Facade struct {
	blobs BlobStore
}

// NewFacade wraps a BlobStore with campaign-scoped content addressing.
func NewFacade(blobs BlobStore) *Facade {
	return &Facade{blobs: blobs}
}

// Put stores data under a content-addressed key scoped to (campaignID,
// documentID) and returns that key for persistence on the Document row.
func (f *Facade) Put(ctx context.Context, campaignID, documentID string, data []byte, contentType string) (string, error) {
	sum := sha256.Sum256(data)
	key := fmt.Sprintf("%s/%s/%s", campaignID, documentID, hex.EncodeToString(sum[:]))
	if _, err := f.blobs.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return key, nil
}

// Get fetches the blob at key. The caller owns the returned reader.
func (f *Facade) Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error) {
	rc, attrs, err := f.blobs.Get(ctx, key)
	if err != nil {
		return nil, ObjectAttrs{}, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	return rc, attrs, nil
}

// Delete removes the blob at key. Deleting a key that no longer exists is
// not an error; the underlying S3 implementation's delete is already
// idempotent.
func (f *Facade) Delete(ctx context.Context, key string) error {
	if err := f.blobs.Delete(ctx, key); err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// Sign returns a time-limited direct-access URL for key.
func (f *Facade) Sign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := f.blobs.Sign(ctx, key, expiry)
	if err != nil {
		return "", fmt.Errorf("objectstore: sign %s: %w", key, err)
	}
	return url, nil
}
