// Package objectstore implements the content-addressed blob facade: a
// thin get/put/delete/sign layer over an opaque blob-store capability,
// scoped by (campaign, document). The underlying blob store itself — S3 or
// an S3-compatible service — is treated as an external collaborator named
// only by the operations it exposes, keeping the capability interface
// (BlobStore) separate from anything built on top of it.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Errors returned by BlobStore implementations.
var (
	ErrNotFound      = errors.New("object not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrBucketMissing = errors.New("bucket does not exist")
)

// ObjectAttrs describes a stored blob.
type ObjectAttrs struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// PutOptions configures a Put call.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// BlobStore is the external collaborator capability: an opaque bucket of
// byte blobs addressed by key. Implementations must be safe for concurrent
// use. This is deliberately narrow — a get/put/delete/sign capability, not a
// general-purpose storage API.
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error)
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (etag string, err error)
	Delete(ctx context.Context, key string) error
	Head(ctx context.Context, key string) (ObjectAttrs, error)
	// Sign returns a time-limited URL a caller can use to fetch the object
	// directly, bypassing this service.
	Sign(ctx context.Context, key string, expiry time.Duration) (string, error)
}
