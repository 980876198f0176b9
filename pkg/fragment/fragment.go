// Package fragment implements C6, the fragment pipeline from spec
// section 4.6: read a stream in fixed-size chunks, apply first-layer
// encapsulation, hash the result, and let the caller deduplicate
// against the catalog before handing new bytes on to C7 (pkg/fragcache).
//
// Chunk size is fixed per compound; variable/content-defined chunking
// is an explicit non-goal (spec.md section 9). Hashing uses crypto/sha256,
// matching the teacher's img_tool/cmd/hash default digest choice.
package fragment

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"iter"

	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/catalog"
	"github.com/imgstash/imgstash/pkg/compress"
	"github.com/imgstash/imgstash/pkg/wrapper"
)

// Chunk is one first-layer-encapsulated fragment produced by Ingest.
// Body is nil when Dup is true: the caller already holds a live
// fragment with this hash and need not store the bytes again.
type Chunk struct {
	Hash catalog.FragmentHash
	Body []byte
	// Size is the length of Body after first-layer encapsulation (the
	// length actually stored inside a resource's inner payload).
	Size int64
	Dup  bool
}

// Lookup reports whether hash already names a live fragment in the
// catalog. Callers typically implement this with a read-only catalog
// transaction (catalog.Catalog.View + Tx.GetFragment).
type Lookup func(hash catalog.FragmentHash) (bool, error)

// Pipeline applies a fixed first-layer encapsulation to every chunk it
// ingests.
type Pipeline struct {
	compressor compress.Compressor
	wrap       wrapper.Wrapper
}

// New builds a pipeline that applies compressor then wrap to each raw
// chunk before hashing, matching the compress-then-wrap ordering
// spec.md section 4.4 requires at every encapsulation layer.
func New(compressor compress.Compressor, wrap wrapper.Wrapper) *Pipeline {
	return &Pipeline{compressor: compressor, wrap: wrap}
}

// Ingest reads r in exact fragmentSize chunks (the final chunk may be
// short; its true length is preserved, never padded) and yields one
// Chunk per fragment in stream order. Iteration stops at the first
// error, which is yielded as the second value of the final pair.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, fragmentSize int64, lookup Lookup) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if fragmentSize <= 0 {
			yield(Chunk{}, fmt.Errorf("%w: fragment size must be positive, got %d", apierr.ErrUsage, fragmentSize))
			return
		}

		buf := make([]byte, fragmentSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(Chunk{}, fmt.Errorf("%w: %v", apierr.ErrCancelled, err))
				return
			}

			n, readErr := io.ReadFull(r, buf)
			if n == 0 {
				if readErr == io.EOF {
					return
				}
				yield(Chunk{}, fmt.Errorf("fragment: reading stream: %w", readErr))
				return
			}

			raw := append([]byte(nil), buf[:n]...)
			compressed, err := p.compressor.Compress(raw)
			if err != nil {
				yield(Chunk{}, fmt.Errorf("fragment: first-layer compress: %w", err))
				return
			}
			wrapped, err := p.wrap.Wrap(compressed)
			if err != nil {
				yield(Chunk{}, fmt.Errorf("fragment: first-layer wrap: %w", err))
				return
			}

			sum := sha256.Sum256(wrapped)
			hash := catalog.FragmentHash(sum)

			isLive, err := lookup(hash)
			if err != nil {
				yield(Chunk{}, fmt.Errorf("fragment: dedup lookup: %w", err))
				return
			}

			chunk := Chunk{Hash: hash, Size: int64(len(wrapped)), Dup: isLive}
			if !isLive {
				chunk.Body = wrapped
			}

			if !yield(chunk, nil) {
				return
			}

			if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
				return
			}
			if readErr != nil {
				yield(Chunk{}, fmt.Errorf("fragment: reading stream: %w", readErr))
				return
			}
		}
	}
}
