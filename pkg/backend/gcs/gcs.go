// Package gcs implements a Google Cloud Storage backend.Service on
// cloud.google.com/go/storage, the sibling SDK family of the teacher's
// existing cloud.google.com/go/longrunning and googleapis dependencies.
package gcs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/backend"
)

// Backend stores one object per blob under a configurable key prefix in a
// single GCS bucket.
type Backend struct {
	client *storage.Client
	bucket string
	prefix string
}

// New constructs a GCS-backed backend.Service using application-default
// credentials.
func New(ctx context.Context, bucketName, prefix string) (*Backend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs backend: creating client: %w", err)
	}
	return &Backend{client: client, bucket: bucketName, prefix: prefix}, nil
}

func (b *Backend) Kind() api.BackendKind { return api.BackendGCS }

func (b *Backend) object(digest string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.prefix + digest)
}

func (b *Backend) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := "sha256:" + hex.EncodeToString(sum[:])

	w := b.object(digest).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return "", fmt.Errorf("%w: gcs write: %v", apierr.ErrBackendUnavailable, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: gcs commit: %v", apierr.ErrBackendUnavailable, err)
	}
	return digest, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, &backend.ErrKeyNotFound{Key: key}
		}
		return nil, fmt.Errorf("%w: gcs read: %v", apierr.ErrBackendUnavailable, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *Backend) List(ctx context.Context, yield func(key string, err error) bool) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return
		}
		if err != nil {
			yield("", fmt.Errorf("%w: gcs list: %v", apierr.ErrBackendUnavailable, err))
			return
		}
		if !yield(attrs.Name[len(b.prefix):], nil) {
			return
		}
	}
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	err := b.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: gcs delete: %v", apierr.ErrBackendUnavailable, err)
	}
	return nil
}
