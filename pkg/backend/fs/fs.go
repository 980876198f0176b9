// Package fs implements a local-filesystem backend.Service. Grounded on
// the teacher's pull_tool/pkg/blobstore sharding scheme
// (blobs/sha256/<hexdigest>), generalized from a fixed single-purpose blob
// cache into a full put/get/list/delete backend.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/backend"
)

// Backend stores one blob per file under root/blobs/sha256/<hexdigest>.
type Backend struct {
	root string
}

// New returns a filesystem backend rooted at root. Call Init before use.
func New(root string) *Backend {
	return &Backend{root: root}
}

// Init creates the backend's directory layout.
func (b *Backend) Init() error {
	return os.MkdirAll(b.blobDir(), 0o755)
}

func (b *Backend) Kind() api.BackendKind { return api.BackendFS }

func (b *Backend) blobDir() string {
	return filepath.Join(b.root, "blobs", "sha256")
}

func (b *Backend) path(key string) string {
	hexDigest := strings.TrimPrefix(key, "sha256:")
	return filepath.Join(b.blobDir(), hexDigest)
}

func (b *Backend) Put(_ context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	key := "sha256:" + hex.EncodeToString(sum[:])
	path := b.path(key)

	if _, err := os.Stat(path); err == nil {
		return key, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: fs backend writing %s: %v", apierr.ErrBackendUnavailable, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("%w: fs backend committing %s: %v", apierr.ErrBackendUnavailable, path, err)
	}
	return key, nil
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &backend.ErrKeyNotFound{Key: key}
		}
		return nil, fmt.Errorf("%w: fs backend reading %s: %v", apierr.ErrBackendUnavailable, key, err)
	}
	return data, nil
}

func (b *Backend) List(_ context.Context, yield func(key string, err error) bool) {
	entries, err := os.ReadDir(b.blobDir())
	if err != nil {
		yield("", fmt.Errorf("%w: fs backend listing: %v", apierr.ErrBackendUnavailable, err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if !yield("sha256:"+entry.Name(), nil) {
			return
		}
	}
}

func (b *Backend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: fs backend deleting %s: %v", apierr.ErrBackendUnavailable, key, err)
	}
	return nil
}
