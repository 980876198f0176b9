// Package rescache implements C5, a bounded-by-bytes LRU of decoded
// resource inner payloads (post-unwrap, post-decompress), keyed by
// resource id. No suitable third-party LRU cache import appears
// anywhere in the example pack (see DESIGN.md), so this is built
// directly on container/list the way the standard library documents
// an LRU: a doubly linked list for recency order plus a map for O(1)
// lookup.
package rescache

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	id      uuid.UUID
	payload []byte
}

// Cache is a read-through-friendly, write-only-via-Put LRU. pkg/compound's
// download path populates it after unsealing a resource; pkg/resource
// never writes to it.
type Cache struct {
	mu         sync.Mutex
	maxBytes   int64
	usedBytes  int64
	ll         *list.List
	index      map[uuid.UUID]*list.Element
}

// New builds a cache that evicts least-recently-used entries once the
// sum of cached payload lengths would exceed maxBytes.
func New(maxBytes int64) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[uuid.UUID]*list.Element),
	}
}

// Get returns the cached payload for id, and whether it was present.
// A hit moves the entry to the front (most-recently-used).
func (c *Cache) Get(id uuid.UUID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[id]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).payload, true
}

// Put inserts or replaces the payload cached for id, evicting
// least-recently-used entries until the cache fits within maxBytes.
func (c *Cache) Put(id uuid.UUID, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		c.usedBytes -= int64(len(el.Value.(*entry).payload))
		c.ll.Remove(el)
		delete(c.index, id)
	}

	if c.maxBytes > 0 && int64(len(payload)) > c.maxBytes {
		// Larger than the whole cache: don't store it, just pass through.
		return
	}

	el := c.ll.PushFront(&entry{id: id, payload: payload})
	c.index[id] = el
	c.usedBytes += int64(len(payload))

	for c.maxBytes > 0 && c.usedBytes > c.maxBytes {
		c.evictOldest()
	}
}

// Remove drops id from the cache, if present. Used when a resource is
// deleted out from under a live cache (clean).
func (c *Cache) Remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[id]
	if !ok {
		return
	}
	c.usedBytes -= int64(len(el.Value.(*entry).payload))
	c.ll.Remove(el)
	delete(c.index, id)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.usedBytes -= int64(len(el.Value.(*entry).payload))
	c.ll.Remove(el)
	delete(c.index, el.Value.(*entry).id)
}
