// Package memory implements an in-memory backend.Service, used for tests
// and for the "memory" -backend flag value. Grounded on the teacher's own
// test-double pattern of a synchronized map keyed by content digest
// (pull_tool/pkg/blobstore/blobstore_test.go's New/WriteSmall/Exists
// contract, generalized from a fixed filesystem layout to a bare map).
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/backend"
)

// Backend is a thread-safe in-memory blob store.
type Backend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{blobs: make(map[string][]byte)}
}

func (b *Backend) Kind() api.BackendKind { return api.BackendMemory }

func (b *Backend) Put(_ context.Context, data []byte) (string, error) {
	key := digestKey(data)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[key]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		b.blobs[key] = stored
	}
	return key, nil
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, &backend.ErrKeyNotFound{Key: key}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (b *Backend) List(_ context.Context, yield func(key string, err error) bool) {
	b.mu.RLock()
	keys := make([]string, 0, len(b.blobs))
	for k := range b.blobs {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	for _, k := range keys {
		if !yield(k, nil) {
			return
		}
	}
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

// Tamper overwrites the stored bytes for key directly, bypassing the
// normal Put path. Used by tests exercising spec section 8's
// overflow-isolation property (corrupting one backend blob).
func (b *Backend) Tamper(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
}

func digestKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
