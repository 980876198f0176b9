// Package fragcache implements C7, the pending-fragment buffer from
// spec section 4.7: fragments not yet resident in any resource wait
// here, deduplicated against each other, in arrival order, until a
// size/count threshold (or compound finalization) flushes a prefix to
// a new resource.Builder. Flush is monotonic: once a fragment has been
// handed to a builder it is removed and never revisited.
package fragcache

import (
	"sync"

	"github.com/imgstash/imgstash/pkg/catalog"
)

// Entry is one pending fragment body awaiting assembly into a resource.
type Entry struct {
	Hash catalog.FragmentHash
	Body []byte
}

// Cache buffers not-yet-packed fragment bodies.
type Cache struct {
	mu      sync.Mutex
	order   []catalog.FragmentHash
	pending map[catalog.FragmentHash][]byte
	bytes   int64
}

// New returns an empty pending buffer.
func New() *Cache {
	return &Cache{pending: make(map[catalog.FragmentHash][]byte)}
}

// Add records body under hash if it isn't already pending, preserving
// first-seen arrival order. Returns false if hash was already pending
// (the within-cache dedup spec section 4.7 requires).
func (c *Cache) Add(hash catalog.FragmentHash, body []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[hash]; ok {
		return false
	}
	c.pending[hash] = body
	c.order = append(c.order, hash)
	c.bytes += int64(len(body))
	return true
}

// Len reports the number of distinct pending fragments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Bytes reports the total pending byte count.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// FlushPrefix removes and returns the first n pending entries in
// arrival order (n is clamped to the current length). The returned
// entries are gone from the cache; flush is monotonic.
func (c *Cache) FlushPrefix(n int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(n)
}

// FlushAll removes and returns every pending entry, in arrival order.
// Callers use this at compound finalization so no fragment is left
// unpacked.
func (c *Cache) FlushAll() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(len(c.order))
}

func (c *Cache) flushLocked(n int) []Entry {
	if n > len(c.order) {
		n = len(c.order)
	}
	out := make([]Entry, 0, n)
	for _, h := range c.order[:n] {
		body := c.pending[h]
		out = append(out, Entry{Hash: h, Body: body})
		delete(c.pending, h)
		c.bytes -= int64(len(body))
	}
	c.order = c.order[n:]
	return out
}
