package compress

import (
	"bytes"
	"testing"

	"github.com/imgstash/imgstash/pkg/api"
)

func TestRoundTripAllKinds(t *testing.T) {
	data := bytes.Repeat([]byte("repeat this phrase so compression has something to do. "), 200)

	for _, kind := range []api.CompressorKind{api.CompressorNone, api.CompressorGzip, api.CompressorZstd} {
		c, err := For(kind, Options{})
		if err != nil {
			t.Fatalf("For(%s): %v", kind, err)
		}
		compressed, err := c.Compress(data)
		if err != nil {
			t.Fatalf("%s Compress: %v", kind, err)
		}
		decompressed, err := c.Decompress(compressed)
		if err != nil {
			t.Fatalf("%s Decompress: %v", kind, err)
		}
		if !bytes.Equal(decompressed, data) {
			t.Fatalf("%s round trip mismatch", kind)
		}
		if c.Kind() != kind {
			t.Errorf("%s Kind() = %s", kind, c.Kind())
		}
	}
}

func TestGzipParallelMatchesSingleThreaded(t *testing.T) {
	data := bytes.Repeat([]byte("parallel gzip via pgzip when jobs > 1. "), 500)

	single, err := For(api.CompressorGzip, Options{Jobs: 1})
	if err != nil {
		t.Fatalf("For single-threaded gzip: %v", err)
	}
	parallel, err := For(api.CompressorGzip, Options{Jobs: 4})
	if err != nil {
		t.Fatalf("For parallel gzip: %v", err)
	}

	compressed, err := parallel.Compress(data)
	if err != nil {
		t.Fatalf("parallel Compress: %v", err)
	}
	decompressed, err := single.Decompress(compressed)
	if err != nil {
		t.Fatalf("single-threaded Decompress of pgzip output: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Fatalf("pgzip/gzip interop round trip mismatch")
	}
}

func TestForUnknownKindErrors(t *testing.T) {
	if _, err := For(api.CompressorKind("bogus"), Options{}); err == nil {
		t.Fatalf("expected an error for an unknown compressor kind")
	}
}
