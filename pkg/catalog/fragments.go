package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/imgstash/imgstash/pkg/apierr"
)

// GetFragment looks up a live fragment by hash. Returns (nil, nil) if
// unknown.
func (t *Tx) GetFragment(hash FragmentHash) (*Fragment, error) {
	raw := t.Get(bucketFragments, hashKey(hash))
	if raw == nil {
		return nil, nil
	}
	var f Fragment
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: decoding fragment %s: %v", apierr.ErrCatalogCorrupt, hash, err)
	}
	return &f, nil
}

// PutFragment writes (creating or replacing) a fragment entry and keeps
// the resource_id -> fragment_hash reverse index in sync.
func (t *Tx) PutFragment(f Fragment) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("catalog: encoding fragment %s: %w", f.Hash, err)
	}
	if err := t.Put(bucketFragments, hashKey(f.Hash), raw); err != nil {
		return err
	}
	return t.Put(bucketResourceFragments, reverseKey(f.ResourceRef.ResourceID.String(), f.Hash), nil)
}

// DeleteFragment removes a fragment entry and its reverse-index row.
func (t *Tx) DeleteFragment(f Fragment) error {
	if err := t.Delete(bucketFragments, hashKey(f.Hash)); err != nil {
		return err
	}
	return t.Delete(bucketResourceFragments, reverseKey(f.ResourceRef.ResourceID.String(), f.Hash))
}

// FragmentHashesForResource yields every live fragment hash recorded
// against resourceID via the reverse index, used by clean's
// live-fragment-count computation (spec section 9, ambiguity a).
func (t *Tx) FragmentHashesForResource(resourceID string, yield func(FragmentHash) bool) {
	prefix := []byte(resourceID + "/")
	t.ScanPrefix(bucketResourceFragments, prefix, func(key, _ []byte) bool {
		hexHash := string(key[len(prefix):])
		var h FragmentHash
		if _, err := decodeHex(hexHash, h[:]); err != nil {
			return true
		}
		return yield(h)
	})
}

// IncrementRefcount bumps an existing fragment's refcount by one and
// persists it, or creates the row with refcount 1 if this is the first
// compound to reference hash at ref (spec section 8 property 3:
// refcount equals the number of positions, across all live compounds'
// fragment sequences, that reference a fragment).
func (t *Tx) IncrementRefcount(hash FragmentHash, size int64, ref ResourceRef) error {
	f, err := t.GetFragment(hash)
	if err != nil {
		return err
	}
	if f == nil {
		return t.PutFragment(Fragment{Hash: hash, Size: size, ResourceRef: ref, Refcount: 1})
	}
	f.Refcount++
	return t.PutFragment(*f)
}

// DecrementRefcount drops a fragment's refcount by one, deleting the row
// entirely (and its reverse-index entry) once it reaches zero. Returns
// the post-decrement refcount, or -1 if the fragment was already absent.
func (t *Tx) DecrementRefcount(hash FragmentHash) (int64, error) {
	f, err := t.GetFragment(hash)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return -1, nil
	}
	f.Refcount--
	if f.Refcount <= 0 {
		if err := t.DeleteFragment(*f); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return f.Refcount, t.PutFragment(*f)
}

// ListFragments yields every live fragment entry, in hash order.
func (t *Tx) ListFragments(yield func(Fragment) bool) error {
	var decodeErr error
	t.ScanPrefix(bucketFragments, nil, func(_, value []byte) bool {
		var f Fragment
		if err := json.Unmarshal(value, &f); err != nil {
			decodeErr = fmt.Errorf("%w: decoding fragment entry: %v", apierr.ErrCatalogCorrupt, err)
			return false
		}
		return yield(f)
	})
	return decodeErr
}

func hashKey(h FragmentHash) []byte {
	return []byte(h.String())
}

func reverseKey(resourceID string, h FragmentHash) []byte {
	return []byte(resourceID + "/" + h.String())
}

func decodeHex(s string, dst []byte) (int, error) {
	if len(s) != len(dst)*2 {
		return 0, fmt.Errorf("catalog: malformed hash %q", s)
	}
	for i := range dst {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return 0, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return 0, err
		}
		dst[i] = hi<<4 | lo
	}
	return len(dst), nil
}

func hexNibble(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("catalog: invalid hex digit %q", b)
	}
}
