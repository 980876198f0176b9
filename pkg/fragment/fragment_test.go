package fragment

import (
	"bytes"
	"context"
	"testing"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/catalog"
	"github.com/imgstash/imgstash/pkg/compress"
	"github.com/imgstash/imgstash/pkg/wrapper"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	compressor, err := compress.For(api.CompressorNone, compress.Options{})
	if err != nil {
		t.Fatalf("compress.For: %v", err)
	}
	wrap, err := wrapper.For(api.WrapperIdentity)
	if err != nil {
		t.Fatalf("wrapper.For: %v", err)
	}
	return New(compressor, wrap)
}

func TestIngestSplitsIntoFragmentsAndPreservesShortTail(t *testing.T) {
	pipeline := newTestPipeline(t)
	data := bytes.Repeat([]byte("a"), 10) // two full 4-byte chunks, one 2-byte tail
	seen := map[catalog.FragmentHash]bool{}

	var chunks []Chunk
	for chunk, err := range pipeline.Ingest(context.Background(), bytes.NewReader(data), 4, func(h catalog.FragmentHash) (bool, error) {
		return seen[h], nil
	}) {
		if err != nil {
			t.Fatalf("Ingest error: %v", err)
		}
		seen[chunk.Hash] = true
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[2].Size != 2 {
		t.Errorf("expected final chunk size 2, got %d", chunks[2].Size)
	}
	// Identical first two chunks (both "aaaa") must share a hash and the
	// second occurrence must be reported as a dup with no body.
	if chunks[0].Hash != chunks[1].Hash {
		t.Errorf("expected identical chunks to hash the same")
	}
	if chunks[1].Dup != true || chunks[1].Body != nil {
		t.Errorf("expected second occurrence to be marked dup with nil body, got %+v", chunks[1])
	}
	if chunks[0].Dup {
		t.Errorf("expected first occurrence to not be a dup")
	}
}

func TestIngestRejectsNonPositiveFragmentSize(t *testing.T) {
	pipeline := newTestPipeline(t)
	var gotErr error
	for _, err := range pipeline.Ingest(context.Background(), bytes.NewReader([]byte("x")), 0, func(catalog.FragmentHash) (bool, error) {
		return false, nil
	}) {
		gotErr = err
	}
	if gotErr == nil {
		t.Fatalf("expected an error for a non-positive fragment size")
	}
}
