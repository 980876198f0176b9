package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/imgstash/imgstash/pkg/apierr"
)

// GetCompound looks up a compound by name. It returns (nil, nil) if the
// name does not exist.
func (t *Tx) GetCompound(name string) (*Compound, error) {
	raw := t.Get(bucketCompounds, []byte(name))
	if raw == nil {
		return nil, nil
	}
	var c Compound
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: decoding compound %q: %v", apierr.ErrCatalogCorrupt, name, err)
	}
	return &c, nil
}

// PutCompound writes (creating or replacing) a compound entry.
func (t *Tx) PutCompound(c Compound) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("catalog: encoding compound %q: %w", c.Name, err)
	}
	return t.Put(bucketCompounds, []byte(c.Name), raw)
}

// DeleteCompound removes a compound entry by name. Deleting an absent name
// is a no-op (idempotent delete, spec section 8 property 6).
func (t *Tx) DeleteCompound(name string) error {
	return t.Delete(bucketCompounds, []byte(name))
}

// ListCompounds yields every compound, in name order.
func (t *Tx) ListCompounds(yield func(Compound) bool) error {
	var decodeErr error
	t.ScanPrefix(bucketCompounds, nil, func(_, value []byte) bool {
		var c Compound
		if err := json.Unmarshal(value, &c); err != nil {
			decodeErr = fmt.Errorf("%w: decoding compound entry: %v", apierr.ErrCatalogCorrupt, err)
			return false
		}
		return yield(c)
	})
	return decodeErr
}
