package fs

import (
	"context"
	"errors"
	"testing"

	"github.com/imgstash/imgstash/pkg/backend"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	b := New(t.TempDir())
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()

	data := []byte("resource payload bytes")
	key, err := b.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := b.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get = %q, want %q", got, data)
	}

	// Putting identical content again returns the same key without error.
	key2, err := b.Put(ctx, data)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if key2 != key {
		t.Fatalf("expected identical content to produce the same key, got %s and %s", key, key2)
	}

	if err := b.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting an absent key is a no-op, not an error.
	if err := b.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete (idempotent): %v", err)
	}

	if _, err := b.Get(ctx, key); err == nil {
		t.Fatalf("expected Get after Delete to fail")
	} else {
		var notFound *backend.ErrKeyNotFound
		if !errors.As(err, &notFound) {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	}
}

func TestListYieldsPutKeys(t *testing.T) {
	b := New(t.TempDir())
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()

	k1, _ := b.Put(ctx, []byte("one"))
	k2, _ := b.Put(ctx, []byte("two"))

	seen := map[string]bool{}
	b.List(ctx, func(key string, err error) bool {
		if err != nil {
			t.Fatalf("List yielded error: %v", err)
		}
		seen[key] = true
		return true
	})
	if !seen[k1] || !seen[k2] {
		t.Fatalf("List = %v, want both %s and %s", seen, k1, k2)
	}
}
