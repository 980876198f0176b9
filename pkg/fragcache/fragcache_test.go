package fragcache

import (
	"testing"

	"github.com/imgstash/imgstash/pkg/catalog"
)

func TestAddDedupesAgainstPending(t *testing.T) {
	c := New()
	h := catalog.FragmentHash{1}

	if !c.Add(h, []byte("a")) {
		t.Fatalf("expected first Add to report new entry")
	}
	if c.Add(h, []byte("a")) {
		t.Errorf("expected second Add of same hash to report already pending")
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 pending entry, got %d", c.Len())
	}
}

func TestFlushPreservesArrivalOrderAndIsMonotonic(t *testing.T) {
	c := New()
	hashes := []catalog.FragmentHash{{1}, {2}, {3}}
	for _, h := range hashes {
		c.Add(h, []byte{h[0]})
	}

	flushed := c.FlushPrefix(2)
	if len(flushed) != 2 || flushed[0].Hash != hashes[0] || flushed[1].Hash != hashes[1] {
		t.Fatalf("FlushPrefix(2) = %+v, want entries for hashes[0], hashes[1] in order", flushed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", c.Len())
	}

	rest := c.FlushAll()
	if len(rest) != 1 || rest[0].Hash != hashes[2] {
		t.Fatalf("FlushAll = %+v, want remaining entry for hashes[2]", rest)
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Fatalf("expected empty cache after FlushAll, len=%d bytes=%d", c.Len(), c.Bytes())
	}
}
