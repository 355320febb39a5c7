package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MemoryStore implements BlobStore using an in-memory map. Useful for tests
// and local development without a real S3-compatible backend.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memObject
}

type memObject struct {
	data  []byte
	attrs ObjectAttrs
}

// NewMemoryStore creates an in-memory BlobStore for testing.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectAttrs{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.attrs, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	etag := "\"" + key + "-etag\""
	m.objects[key] = &memObject{
		data: data,
		attrs: ObjectAttrs{
			Key:          key,
			Size:         int64(len(data)),
			ETag:         etag,
			LastModified: time.Now().UTC(),
			ContentType:  opts.ContentType,
		},
	}
	return etag, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (ObjectAttrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectAttrs{}, ErrNotFound
	}
	return obj.attrs, nil
}

// Sign returns a fake local URL; there is no real presigning without a real
// backend. The URL carries the key and the expiry time as a Unix timestamp.
func (m *MemoryStore) Sign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("memory://%s?expires=%d", key, time.Now().Add(expiry).Unix()), nil
}

var _ BlobStore = (*MemoryStore)(nil)
