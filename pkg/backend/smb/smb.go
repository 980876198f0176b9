// Package smb implements a backend.Service over an SMB2/3 share using
// github.com/hirochachacha/go-smb2, the standard pure-Go SMB client. No
// example in the pack ships an SMB client, so this dependency is named
// rather than grounded on a specific file (see DESIGN.md).
package smb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/hirochachacha/go-smb2"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/backend"
)

// Backend stores one file per blob under a directory on an SMB share.
type Backend struct {
	conn   net.Conn
	sess   *smb2.Session
	share  *smb2.Share
	subdir string
}

// Config holds the connection parameters for a share.
type Config struct {
	Address  string // host:445
	User     string
	Password string
	Domain   string
	Share    string // share name, e.g. "backup"
	Subdir   string // directory within the share to store blobs under
}

// Dial connects to addr, authenticates, and mounts the named share.
func Dial(cfg Config) (*Backend, error) {
	conn, err := net.Dial("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: smb dial: %v", apierr.ErrBackendUnavailable, err)
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.User,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		},
	}
	sess, err := dialer.Dial(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: smb session: %v", apierr.ErrBackendUnavailable, err)
	}

	share, err := sess.Mount(cfg.Share)
	if err != nil {
		sess.Logoff()
		conn.Close()
		return nil, fmt.Errorf("%w: smb mount %s: %v", apierr.ErrBackendUnavailable, cfg.Share, err)
	}

	if cfg.Subdir != "" {
		if err := share.MkdirAll(cfg.Subdir, 0o755); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("%w: smb mkdir %s: %v", apierr.ErrBackendUnavailable, cfg.Subdir, err)
		}
	}

	return &Backend{conn: conn, sess: sess, share: share, subdir: cfg.Subdir}, nil
}

// Close unmounts the share and closes the underlying connection.
func (b *Backend) Close() error {
	b.share.Umount()
	b.sess.Logoff()
	return b.conn.Close()
}

func (b *Backend) Kind() api.BackendKind { return api.BackendSMB }

func (b *Backend) path(digest string) string {
	name := strings.TrimPrefix(digest, "sha256:")
	if b.subdir == "" {
		return name
	}
	return b.subdir + "\\" + name
}

func (b *Backend) Put(_ context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := "sha256:" + hex.EncodeToString(sum[:])

	f, err := b.share.Create(b.path(digest))
	if err != nil {
		return "", fmt.Errorf("%w: smb create: %v", apierr.ErrBackendUnavailable, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("%w: smb write: %v", apierr.ErrBackendUnavailable, err)
	}
	return digest, nil
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	f, err := b.share.Open(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &backend.ErrKeyNotFound{Key: key}
		}
		return nil, fmt.Errorf("%w: smb open: %v", apierr.ErrBackendUnavailable, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (b *Backend) List(_ context.Context, yield func(key string, err error) bool) {
	dir := b.subdir
	if dir == "" {
		dir = "."
	}
	entries, err := b.share.ReadDir(dir)
	if err != nil {
		yield("", fmt.Errorf("%w: smb readdir: %v", apierr.ErrBackendUnavailable, err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !yield("sha256:"+entry.Name(), nil) {
			return
		}
	}
}

func (b *Backend) Delete(_ context.Context, key string) error {
	err := b.share.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: smb remove: %v", apierr.ErrBackendUnavailable, err)
	}
	return nil
}
