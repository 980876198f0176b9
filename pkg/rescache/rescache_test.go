package rescache

import (
	"testing"

	"github.com/google/uuid"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := New(1 << 20)
	id := uuid.New()

	if _, ok := c.Get(id); ok {
		t.Fatalf("expected miss on empty cache")
	}

	c.Put(id, []byte("payload"))
	got, ok := c.Get(id)
	if !ok || string(got) != "payload" {
		t.Fatalf("Get = %q, %v; want %q, true", got, ok, "payload")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(10)
	a, b, cc := uuid.New(), uuid.New(), uuid.New()

	c.Put(a, make([]byte, 4))
	c.Put(b, make([]byte, 4))
	// Touch a so b becomes the least recently used entry.
	c.Get(a)
	c.Put(cc, make([]byte, 4))

	if _, ok := c.Get(b); ok {
		t.Errorf("expected b to have been evicted")
	}
	if _, ok := c.Get(a); !ok {
		t.Errorf("expected a to survive eviction")
	}
	if _, ok := c.Get(cc); !ok {
		t.Errorf("expected c to have been inserted")
	}
}

func TestPayloadLargerThanCacheIsNotStored(t *testing.T) {
	c := New(4)
	id := uuid.New()
	c.Put(id, make([]byte, 16))

	if _, ok := c.Get(id); ok {
		t.Errorf("expected oversized payload to be rejected, not stored")
	}
	if c.Len() != 0 {
		t.Errorf("expected cache to remain empty, len = %d", c.Len())
	}
}

func TestRemove(t *testing.T) {
	c := New(1 << 20)
	id := uuid.New()
	c.Put(id, []byte("x"))
	c.Remove(id)

	if _, ok := c.Get(id); ok {
		t.Errorf("expected removed entry to miss")
	}
}
