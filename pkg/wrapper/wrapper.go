// Package wrapper implements the reversible wrap/unwrap codecs from spec
// section 4.2: a closed set of transforms making already-dense bytes
// acceptable to a backend that only tolerates a specific container
// format. unwrap(wrap(x)) == x for every x and every wrapper.
package wrapper

import (
	"fmt"

	"github.com/imgstash/imgstash/pkg/api"
)

// Wrapper is the reversible byte transform every variant implements.
type Wrapper interface {
	Wrap(data []byte) ([]byte, error)
	Unwrap(data []byte) ([]byte, error)
	Kind() api.WrapperKind
}

// For constructs the wrapper named by kind.
func For(kind api.WrapperKind) (Wrapper, error) {
	switch kind {
	case api.WrapperIdentity:
		return Identity{}, nil
	case api.WrapperPNG:
		return PNG{}, nil
	case api.WrapperSVG:
		return SVG{}, nil
	default:
		return nil, fmt.Errorf("wrapper: unknown kind %q", kind)
	}
}

// Identity passes bytes through unchanged, for backends that accept
// arbitrary binary data.
type Identity struct{}

func (Identity) Wrap(data []byte) ([]byte, error)   { return data, nil }
func (Identity) Unwrap(data []byte) ([]byte, error) { return data, nil }
func (Identity) Kind() api.WrapperKind              { return api.WrapperIdentity }
