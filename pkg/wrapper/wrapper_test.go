package wrapper

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, w Wrapper, data []byte) []byte {
	t.Helper()
	wrapped, err := w.Wrap(data)
	if err != nil {
		t.Fatalf("%s Wrap: %v", w.Kind(), err)
	}
	unwrapped, err := w.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("%s Unwrap: %v", w.Kind(), err)
	}
	if !bytes.Equal(unwrapped, data) {
		t.Fatalf("%s round trip: got %q, want %q", w.Kind(), unwrapped, data)
	}
	return wrapped
}

func TestIdentityRoundTrip(t *testing.T) {
	roundTrip(t, Identity{}, []byte("arbitrary bytes"))
}

func TestPNGRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("x"),
		bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 10000), // forces multiple scanlines
	}
	for _, data := range cases {
		wrapped := roundTrip(t, PNG{}, data)
		if len(wrapped) < 8 || !bytes.Equal(wrapped[:8], pngSignature[:]) {
			t.Errorf("expected wrapped output to start with the PNG signature")
		}
	}
}

func TestPNGRejectsTamperedPixelData(t *testing.T) {
	wrapped, err := PNG{}.Wrap(bytes.Repeat([]byte("hello"), 50))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	// Flip a byte inside the IDAT chunk's payload; every chunk's CRC-32
	// covers its own payload, so this must fail Unwrap's CRC check.
	tampered := append([]byte(nil), wrapped...)
	tampered[len(tampered)-30] ^= 0xFF

	if _, err := (PNG{}).Unwrap(tampered); err == nil {
		t.Fatalf("expected tampered pixel data to fail CRC verification")
	}
}

func TestSVGRoundTrip(t *testing.T) {
	roundTrip(t, SVG{}, []byte("hex me please"))
	roundTrip(t, SVG{}, nil)
}

func TestSVGUnwrapRejectsMalformedInput(t *testing.T) {
	if _, err := (SVG{}).Unwrap([]byte("<svg><desc>not a valid wrapper payload</desc></svg>")); err == nil {
		t.Fatalf("expected malformed SVG to be rejected")
	}
}
