package catalog

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Tx is a single logical transaction spanning all four mappings. It
// exposes both the abstract get/put/delete/scan_prefix contract from spec
// section 4.9 and typed per-entity helpers (in compounds.go, fragments.go,
// resources.go) built on top of it.
type Tx struct {
	tx       *bolt.Tx
	writable bool
}

// Begin starts a transaction. writable transactions must end in Commit or
// Rollback; read-only transactions may simply be discarded after Rollback.
func (c *Catalog) Begin(writable bool) (*Tx, error) {
	tx, err := c.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin: %w", err)
	}
	return &Tx{tx: tx, writable: writable}, nil
}

// View runs fn inside a read-only transaction, always ending in Rollback
// (bbolt read transactions have no separate "commit").
func (c *Catalog) View(fn func(tx *Tx) error) error {
	return c.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx, writable: false})
	})
}

// Update runs fn inside a writable transaction, committing on a nil
// return and rolling back otherwise. This is the entry point C4 and C8
// use for the "one logical operation, one commit" atomicity spec section
// 4.9 requires.
func (c *Catalog) Update(fn func(tx *Tx) error) error {
	return c.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx, writable: true})
	})
}

// Commit ends a transaction started with Begin(true), persisting its
// writes.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// Rollback discards a transaction's writes (or simply ends a read-only
// transaction).
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != bolt.ErrTxClosed {
		return fmt.Errorf("catalog: rollback: %w", err)
	}
	return nil
}

// Get reads raw bytes for key from the named bucket.
func (t *Tx) Get(bucket, key []byte) []byte {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return nil
	}
	v := b.Get(key)
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Put writes raw bytes for key into the named bucket.
func (t *Tx) Put(bucket, key, value []byte) error {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("catalog: unknown bucket %s", bucket)
	}
	return b.Put(key, value)
}

// Delete removes key from the named bucket. Deleting an absent key is a
// no-op, matching the backend contract's idempotent-delete guarantee.
func (t *Tx) Delete(bucket, key []byte) error {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return nil
	}
	return b.Delete(key)
}

// ScanPrefix yields every key/value pair in bucket whose key starts with
// prefix, in key order. Iteration stops early if yield returns false.
func (t *Tx) ScanPrefix(bucket, prefix []byte, yield func(key, value []byte) bool) {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return
	}
	cursor := b.Cursor()
	for k, v := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cursor.Next() {
		if !yield(k, v) {
			return
		}
	}
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
