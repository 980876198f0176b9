// Package catalog implements the abstract persistent key/value store from
// spec section 4.9: the four mappings of section 3 (name -> Compound,
// fragment_hash -> Fragment, resource_id -> Resource, and the reverse
// index resource_id -> set<fragment_hash> used for GC), with transactional
// multi-key updates so C4 and C8 can commit a logical operation atomically.
//
// Grounded on the vendored podman BoltState
// (vendor/github.com/containers/podman/v5/libpod/boltdb_state.go): a
// bucket-per-entity layout opened once at startup with
// CreateBucketIfNotExists, mutated only inside db.Update/db.View closures.
package catalog

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
)

var (
	bucketMeta              = []byte("meta")
	bucketCompounds         = []byte("compounds")
	bucketFragments         = []byte("fragments")
	bucketResources         = []byte("resources")
	bucketResourceFragments = []byte("resource_fragments")

	allBuckets = [][]byte{
		bucketMeta,
		bucketCompounds,
		bucketFragments,
		bucketResources,
		bucketResourceFragments,
	}

	metaKeySchemaVersion = []byte("schema_version")
)

// Catalog is the durable metadata store. It owns all compound, fragment,
// and resource bookkeeping; the backends own the bytes.
type Catalog struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt-backed catalog at path,
// verifying the schema version and initializing buckets on first use.
func Open(path string) (*Catalog, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", path, err)
	}

	c := &Catalog{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) init() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, bkt := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bkt); err != nil {
				return fmt.Errorf("catalog: creating bucket %s: %w", bkt, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		existing := meta.Get(metaKeySchemaVersion)
		if existing == nil {
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], api.CatalogSchemaMajor)
			return meta.Put(metaKeySchemaVersion, buf[:])
		}

		version := binary.BigEndian.Uint32(existing)
		if version > api.CatalogSchemaMajor {
			return fmt.Errorf("%w: catalog schema version %d is newer than supported version %d",
				apierr.ErrCatalogCorrupt, version, api.CatalogSchemaMajor)
		}
		return nil
	})
}

// Close releases the underlying database file.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Wipe removes every compound, fragment, and resource entry, leaving an
// empty (but still schema-initialized) catalog. Used by the wipe
// subcommand; it does not touch the backend — callers wanting "-c" must
// separately delete() each resource's backend_key first.
func (c *Catalog) Wipe() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, bkt := range allBuckets {
			if bkt[0] == 'm' { // preserve the meta bucket (schema version)
				continue
			}
			if err := tx.DeleteBucket(bkt); err != nil && err != bolt.ErrBucketNotFound {
				return fmt.Errorf("catalog: wiping bucket %s: %w", bkt, err)
			}
			if _, err := tx.CreateBucket(bkt); err != nil {
				return fmt.Errorf("catalog: recreating bucket %s: %w", bkt, err)
			}
		}
		return nil
	})
}
