package resource

import (
	"context"
	"testing"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/backend/memory"
	"github.com/imgstash/imgstash/pkg/catalog"
	"github.com/imgstash/imgstash/pkg/compress"
	"github.com/imgstash/imgstash/pkg/wrapper"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	compressor, err := compress.For(api.CompressorNone, compress.Options{})
	if err != nil {
		t.Fatalf("compress.For: %v", err)
	}
	wrap, err := wrapper.For(api.WrapperIdentity)
	if err != nil {
		t.Fatalf("wrapper.For: %v", err)
	}
	svc := memory.New()

	opts := Options{MaxFragments: 10, TargetSize: 1 << 20, Encaps: api.EncapsulationSpec{Compressor: api.CompressorNone, Wrapper: api.WrapperIdentity}}
	builder := Open(opts, compressor, wrap, svc)

	bodies := map[catalog.FragmentHash][]byte{
		{1}: []byte("first fragment body"),
		{2}: []byte("second, slightly longer fragment body"),
		{3}: []byte("x"),
	}
	wantLayout := map[catalog.FragmentHash]struct{ offset, length int64 }{}
	for hash, body := range bodies {
		_, offset, length, err := builder.Append(hash, body)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		wantLayout[hash] = struct{ offset, length int64 }{offset, length}
	}

	res, err := builder.Seal(context.Background())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(res.FragmentLayout) != 3 {
		t.Fatalf("expected 3 layout entries, got %d", len(res.FragmentLayout))
	}
	for _, entry := range res.FragmentLayout {
		want, ok := wantLayout[entry.Hash]
		if !ok {
			t.Fatalf("unexpected hash %s in layout", entry.Hash)
		}
		if entry.Offset != want.offset || entry.Length != want.length {
			t.Errorf("layout for %s = (%d,%d), want (%d,%d)", entry.Hash, entry.Offset, entry.Length, want.offset, want.length)
		}
	}

	raw, err := svc.Get(context.Background(), res.BackendKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	unsealed, err := Unseal(context.Background(), raw, compressor, wrap)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if len(unsealed) != len(bodies) {
		t.Fatalf("Unseal returned %d bodies, want %d", len(unsealed), len(bodies))
	}
	for hash, body := range bodies {
		got, ok := unsealed[hash]
		if !ok {
			t.Fatalf("Unseal missing hash %s", hash)
		}
		if string(got) != string(body) {
			t.Errorf("Unseal body for %s = %q, want %q", hash, got, body)
		}
	}
}

func TestFullRespectsFragmentCountBudget(t *testing.T) {
	compressor, _ := compress.For(api.CompressorNone, compress.Options{})
	wrap, _ := wrapper.For(api.WrapperIdentity)
	builder := Open(Options{MaxFragments: 2}, compressor, wrap, memory.New())

	if builder.Full() {
		t.Fatalf("expected empty builder to not be full")
	}
	builder.Append(catalog.FragmentHash{1}, []byte("a"))
	if builder.Full() {
		t.Fatalf("expected builder with 1/2 fragments to not be full")
	}
	builder.Append(catalog.FragmentHash{2}, []byte("b"))
	if !builder.Full() {
		t.Fatalf("expected builder with 2/2 fragments to be full")
	}
}

func TestSealEmptyBuilderErrors(t *testing.T) {
	compressor, _ := compress.For(api.CompressorNone, compress.Options{})
	wrap, _ := wrapper.For(api.WrapperIdentity)
	builder := Open(Options{}, compressor, wrap, memory.New())

	if _, err := builder.Seal(context.Background()); err == nil {
		t.Fatalf("expected sealing an empty builder to error")
	}
}
