package catalog

import (
	"github.com/google/uuid"

	"github.com/imgstash/imgstash/pkg/api"
)

// FragmentHash is the sha256 digest of a fragment's post-first-layer body,
// the dedup key from spec section 3.
type FragmentHash [32]byte

func (h FragmentHash) String() string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 64)
	for i, b := range h {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}
	return string(buf)
}

// Compound is a named user-visible byte stream, spec section 3.
type Compound struct {
	Name              string              `json:"name"`
	TotalSize         int64               `json:"total_size"`
	TotalHash         FragmentHash        `json:"total_hash"`
	EncapsulationSpec api.EncapsulationSpec `json:"encapsulation_spec"`
	FragmentSize      int64               `json:"fragment_size"`
	FragmentSequence  []FragmentHash      `json:"fragment_sequence"`
}

// ResourceRef locates a fragment's body inside a resource's inner payload.
type ResourceRef struct {
	ResourceID uuid.UUID `json:"resource_id"`
	Offset     int64     `json:"offset"`
	Length     int64     `json:"length"`
}

// Fragment is a content-addressed, first-layer-encapsulated chunk, spec
// section 3.
type Fragment struct {
	Hash        FragmentHash `json:"hash"`
	Size        int64        `json:"size"`
	ResourceRef ResourceRef  `json:"resource_ref"`
	Refcount    int64        `json:"refcount"`
}

// FragmentLayoutEntry is one fragment's position within a Resource's inner
// payload.
type FragmentLayoutEntry struct {
	Hash   FragmentHash `json:"hash"`
	Offset int64        `json:"offset"`
	Length int64        `json:"length"`
}

// Resource is a container of one or more fragment bodies, spec section 3.
type Resource struct {
	ID             uuid.UUID             `json:"id"`
	BackendKind    api.BackendKind       `json:"backend_kind"`
	BackendKey     string                `json:"backend_key"`
	FragmentLayout []FragmentLayoutEntry `json:"fragment_layout"`
	WrapperSpec    api.EncapsulationSpec `json:"wrapper_spec"`
	TotalSize      int64                 `json:"total_size"`
}
