package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/imgstash/imgstash/pkg/apierr"
)

// GetResource looks up a resource by id. Returns (nil, nil) if unknown.
func (t *Tx) GetResource(id uuid.UUID) (*Resource, error) {
	raw := t.Get(bucketResources, []byte(id.String()))
	if raw == nil {
		return nil, nil
	}
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decoding resource %s: %v", apierr.ErrCatalogCorrupt, id, err)
	}
	return &r, nil
}

// PutResource writes (creating or replacing) a resource entry.
func (t *Tx) PutResource(r Resource) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("catalog: encoding resource %s: %w", r.ID, err)
	}
	return t.Put(bucketResources, []byte(r.ID.String()), raw)
}

// DeleteResource removes a resource entry and every reverse-index row
// recorded against it. It does not touch the backend bytes; callers
// (clean) must separately issue backend.Delete once ResourceIsReferenced
// reports the resource is no longer referenced by any live fragment.
func (t *Tx) DeleteResource(id uuid.UUID) error {
	if err := t.Delete(bucketResources, []byte(id.String())); err != nil {
		return err
	}
	var toRemove [][]byte
	t.FragmentHashesForResource(id.String(), func(h FragmentHash) bool {
		toRemove = append(toRemove, reverseKey(id.String(), h))
		return true
	})
	for _, key := range toRemove {
		if err := t.Delete(bucketResourceFragments, key); err != nil {
			return err
		}
	}
	return nil
}

// ListResources yields every resource entry, in id order.
func (t *Tx) ListResources(yield func(Resource) bool) error {
	var decodeErr error
	t.ScanPrefix(bucketResources, nil, func(_, value []byte) bool {
		var r Resource
		if err := json.Unmarshal(value, &r); err != nil {
			decodeErr = fmt.Errorf("%w: decoding resource entry: %v", apierr.ErrCatalogCorrupt, err)
			return false
		}
		return yield(r)
	})
	return decodeErr
}

// ResourceIsReferenced reports whether any fragment still points back at
// resourceID, i.e. whether its backend bytes are part of the live GC
// closure (spec section 8 property 4: deleting a compound never leaves a
// fragment referenced by a surviving compound unreachable, and clean
// never deletes a resource still holding a live fragment).
func (t *Tx) ResourceIsReferenced(id uuid.UUID) bool {
	referenced := false
	t.FragmentHashesForResource(id.String(), func(FragmentHash) bool {
		referenced = true
		return false
	})
	return referenced
}
