// Package backend defines the storage-service contract (spec section 4.1):
// an abstract put/get/list/delete of opaque blobs keyed by a
// backend-chosen identifier. Concrete variants live in subpackages
// (memory, fs, smb, s3, gcs); pkg/retry wraps any of them to absorb
// transient failures.
package backend

import (
	"context"
	"fmt"

	"github.com/imgstash/imgstash/pkg/api"
)

// Service is the minimal contract every backend must satisfy. Byte-exact
// retrieval, a stable identifier, and idempotent delete are invariants
// every implementation must uphold, not just a type signature.
type Service interface {
	// Put stores data and returns the backend-chosen identifier for it.
	Put(ctx context.Context, data []byte) (key string, err error)

	// Get retrieves the exact bytes previously stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List yields every key currently stored. Implementations may stream
	// lazily; callers must drain or abandon the sequence promptly.
	List(ctx context.Context, yield func(key string, err error) bool)

	// Delete removes key. Deleting a key that does not exist is a no-op.
	Delete(ctx context.Context, key string) error

	// Kind identifies which concrete variant this is, recorded in Resource
	// metadata so a resource can be matched back to the backend that holds
	// it even if a catalog spans backend migrations.
	Kind() api.BackendKind
}

// Constraints describes a backend's blob-size and blob-count limits, used
// by operators to choose -fs/-rs (spec section 6).
type Constraints struct {
	MaxBlobSize  int64
	MaxBlobCount int64
}

// ErrKeyNotFound is returned by Get when key is unknown. Backends
// should wrap it so callers can distinguish a truly missing blob from a
// transient failure.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return fmt.Sprintf("backend: key %q not found", e.Key)
}
