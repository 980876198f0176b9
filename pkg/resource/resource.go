// Package resource implements C4, the resource assembler from spec
// section 4.4: fragments accumulate into an inner framed payload
// (magic, version, compressor id, wrapper id, fragment count, then
// per-fragment hash+length+body), which is compressed then wrapped
// (second-layer encapsulation, never the reverse) and handed to a
// backend. Grounded on img_tool/pkg/tarcas's accumulate-then-flush
// shape: a builder collects bytes under a size/count budget and
// produces one opaque upload per flush.
package resource

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/backend"
	"github.com/imgstash/imgstash/pkg/catalog"
	"github.com/imgstash/imgstash/pkg/compress"
	"github.com/imgstash/imgstash/pkg/wrapper"
)

// headerSize is the fixed-width inner-payload header: 4-byte magic,
// 1-byte format version, 1-byte compressor code, 1-byte wrapper code,
// 4-byte little-endian fragment count.
const headerSize = 4 + 1 + 1 + 1 + 4

// fragmentRecordOverhead is the per-fragment framing cost ahead of its
// body: a 32-byte hash plus an 8-byte little-endian length.
const fragmentRecordOverhead = 32 + 8

// Options bounds how large a single resource may grow. Full reports when
// the budget is reached; Append itself never refuses a fragment, so the
// caller (pkg/compound, via pkg/fragcache) decides when to Seal and start
// a fresh resource.
type Options struct {
	MaxFragments int
	TargetSize   int64
	Encaps       api.EncapsulationSpec
}

// Builder accumulates fragment bodies into one resource's inner
// payload. It is not safe for concurrent use.
type Builder struct {
	id         uuid.UUID
	opts       Options
	compressor compress.Compressor
	wrap       wrapper.Wrapper
	backend    backend.Service

	entries   []entry
	bodyBytes int64
}

type entry struct {
	hash catalog.FragmentHash
	body []byte
}

// Open starts a new resource builder with a freshly minted resource id
// (github.com/google/uuid, matching the teacher's own id-minting
// pattern for per-operation identifiers).
func Open(opts Options, compressor compress.Compressor, wrap wrapper.Wrapper, svc backend.Service) *Builder {
	return &Builder{
		id:         uuid.New(),
		opts:       opts,
		compressor: compressor,
		wrap:       wrap,
		backend:    svc,
	}
}

// Full reports whether the builder has reached its configured fragment
// count or target size budget and should be Sealed before another
// Append.
func (b *Builder) Full() bool {
	if b.opts.MaxFragments > 0 && len(b.entries) >= b.opts.MaxFragments {
		return true
	}
	if b.opts.TargetSize > 0 && b.bodyBytes >= b.opts.TargetSize {
		return true
	}
	return false
}

// Len reports the number of fragments appended so far.
func (b *Builder) Len() int { return len(b.entries) }

// Append adds one first-layer-encapsulated fragment body to the
// resource, returning where it will land in the sealed inner payload.
// body must already be first-layer encapsulated; Append does not
// compress or wrap it (that happens once, over the whole resource, at
// Seal).
func (b *Builder) Append(hash catalog.FragmentHash, body []byte) (resourceID uuid.UUID, offset, length int64, err error) {
	offset = headerSize + b.bodyBytes + fragmentRecordOverhead
	length = int64(len(body))

	b.entries = append(b.entries, entry{hash: hash, body: body})
	b.bodyBytes += fragmentRecordOverhead + length

	return b.id, offset, length, nil
}

// Seal frames every appended fragment into the inner payload, applies
// second-layer compress-then-wrap, uploads the result to the backend,
// and returns the catalog.Resource describing where each fragment now
// lives. Sealing an empty builder is an error: callers should not Open
// one until they have at least one fragment to pack.
func (b *Builder) Seal(ctx context.Context) (*catalog.Resource, error) {
	if len(b.entries) == 0 {
		return nil, fmt.Errorf("%w: sealing a resource with no fragments", apierr.ErrUsage)
	}

	inner, layout := b.frame()

	compressed, err := b.compressor.Compress(inner)
	if err != nil {
		return nil, fmt.Errorf("resource: second-layer compress: %w", err)
	}
	wrapped, err := b.wrap.Wrap(compressed)
	if err != nil {
		return nil, fmt.Errorf("resource: second-layer wrap: %w", err)
	}

	key, err := b.backend.Put(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: uploading resource %s: %v", apierr.ErrBackendUnavailable, b.id, err)
	}

	return &catalog.Resource{
		ID:             b.id,
		BackendKind:    b.backend.Kind(),
		BackendKey:     key,
		FragmentLayout: layout,
		WrapperSpec:    b.opts.Encaps,
		TotalSize:      int64(len(wrapped)),
	}, nil
}

// frame writes the fixed header followed by each fragment's
// hash+length+body record, returning the full inner payload alongside
// the per-fragment offset/length layout (offsets of the body, not the
// record, matching what pkg/compound's download path slices out of the
// unsealed payload directly).
func (b *Builder) frame() ([]byte, []catalog.FragmentLayoutEntry) {
	var buf bytes.Buffer
	buf.Grow(int(headerSize + b.bodyBytes))

	buf.Write(api.ResourceMagic[:])
	buf.WriteByte(api.ResourceFormatVersion)
	buf.WriteByte(compressorCode(b.opts.Encaps.Compressor))
	buf.WriteByte(wrapperCode(b.opts.Encaps.Wrapper))

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(b.entries)))
	buf.Write(countBuf[:])

	layout := make([]catalog.FragmentLayoutEntry, 0, len(b.entries))
	for _, e := range b.entries {
		buf.Write(e.hash[:])
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(e.body)))
		buf.Write(lenBuf[:])
		bodyOffset := int64(buf.Len())
		buf.Write(e.body)
		layout = append(layout, catalog.FragmentLayoutEntry{
			Hash:   e.hash,
			Offset: bodyOffset,
			Length: int64(len(e.body)),
		})
	}

	return buf.Bytes(), layout
}

// Unseal parses a previously sealed resource's wrapped+compressed bytes
// back into the fragment bodies that compose it, keyed by hash. It is
// the Seal/frame inverse, used by pkg/compound's download path.
func Unseal(ctx context.Context, raw []byte, compressor compress.Compressor, wrap wrapper.Wrapper) (map[catalog.FragmentHash][]byte, error) {
	unwrapped, err := wrap.Unwrap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping resource: %v", apierr.ErrResourceCorrupt, err)
	}
	inner, err := compressor.Decompress(unwrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing resource: %v", apierr.ErrResourceCorrupt, err)
	}

	if len(inner) < headerSize {
		return nil, fmt.Errorf("%w: resource payload shorter than header", apierr.ErrResourceCorrupt)
	}
	if !bytes.Equal(inner[0:4], api.ResourceMagic[:]) {
		return nil, fmt.Errorf("%w: bad resource magic", apierr.ErrResourceCorrupt)
	}
	if inner[4] != api.ResourceFormatVersion {
		return nil, fmt.Errorf("%w: unsupported resource format version %d", apierr.ErrResourceCorrupt, inner[4])
	}

	count := binary.LittleEndian.Uint32(inner[7:11])
	out := make(map[catalog.FragmentHash][]byte, count)

	pos := headerSize
	for i := uint32(0); i < count; i++ {
		if pos+fragmentRecordOverhead > len(inner) {
			return nil, fmt.Errorf("%w: truncated fragment record %d", apierr.ErrResourceCorrupt, i)
		}
		var hash catalog.FragmentHash
		copy(hash[:], inner[pos:pos+32])
		length := binary.LittleEndian.Uint64(inner[pos+32 : pos+40])
		pos += fragmentRecordOverhead

		if pos+int(length) > len(inner) {
			return nil, fmt.Errorf("%w: fragment %d body truncated", apierr.ErrResourceCorrupt, i)
		}
		body := make([]byte, length)
		copy(body, inner[pos:pos+int(length)])
		pos += int(length)

		out[hash] = body
	}

	return out, nil
}

func compressorCode(k api.CompressorKind) byte {
	switch k {
	case api.CompressorNone:
		return 0
	case api.CompressorGzip:
		return 1
	case api.CompressorZstd:
		return 2
	default:
		return 0xff
	}
}

func wrapperCode(k api.WrapperKind) byte {
	switch k {
	case api.WrapperIdentity:
		return 0
	case api.WrapperPNG:
		return 1
	case api.WrapperSVG:
		return 2
	default:
		return 0xff
	}
}
