// Package api holds the small, closed set of wire-level enums and
// descriptor types shared across imgstash's layers, mirroring the role of
// the teacher's own pkg/api package: a place for the vocabulary every other
// package imports instead of redeclaring.
package api

import "fmt"

// CompressorKind identifies a second- or first-layer compressor. The set is
// closed: new algorithms are added here, never loaded as plugins.
type CompressorKind string

const (
	CompressorNone CompressorKind = "none"
	CompressorGzip CompressorKind = "gzip"
	CompressorZstd CompressorKind = "zstd"
)

func (c CompressorKind) Valid() bool {
	switch c {
	case CompressorNone, CompressorGzip, CompressorZstd:
		return true
	default:
		return false
	}
}

// WrapperKind identifies a reversible byte-to-container transform.
type WrapperKind string

const (
	WrapperIdentity WrapperKind = "identity"
	WrapperPNG      WrapperKind = "png"
	WrapperSVG      WrapperKind = "svg"
)

func (w WrapperKind) Valid() bool {
	switch w {
	case WrapperIdentity, WrapperPNG, WrapperSVG:
		return true
	default:
		return false
	}
}

// BackendKind identifies a concrete storage backend implementation.
type BackendKind string

const (
	BackendMemory BackendKind = "memory"
	BackendFS     BackendKind = "fs"
	BackendSMB    BackendKind = "smb"
	BackendS3     BackendKind = "s3"
	BackendGCS    BackendKind = "gcs"
)

func (b BackendKind) Valid() bool {
	switch b {
	case BackendMemory, BackendFS, BackendSMB, BackendS3, BackendGCS:
		return true
	default:
		return false
	}
}

// EncapsulationSpec names the codecs applied, in order, at one layer of
// encapsulation (compress-then-wrap, per spec section 4.4).
type EncapsulationSpec struct {
	Compressor CompressorKind `json:"compressor"`
	Wrapper    WrapperKind    `json:"wrapper"`
}

func (e EncapsulationSpec) String() string {
	return fmt.Sprintf("%s+%s", e.Compressor, e.Wrapper)
}

// ResourceMagic is the 4-byte magic prefix of a resource's inner payload.
var ResourceMagic = [4]byte{'I', 'S', 'T', 'H'}

// ResourceFormatVersion is the current inner-resource framing version.
const ResourceFormatVersion uint8 = 1

// CatalogSchemaMajor is bumped on breaking changes to the catalog's bucket
// layout; a catalog opened with a newer major version must be refused.
const CatalogSchemaMajor uint32 = 1
