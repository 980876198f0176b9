package digestreader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"testing"
)

func TestSumMatchesDirectHash(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox "), 1000)
	want := sha256.Sum256(data)

	d := Wrap(context.Background(), bytes.NewReader(data))
	got, err := io.ReadAll(d)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read data does not match source")
	}
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d.Sum() != want {
		t.Errorf("Sum() = %x, want %x", d.Sum(), want)
	}
}

func TestSumOfEmptyStream(t *testing.T) {
	want := sha256.Sum256(nil)

	d := Wrap(context.Background(), bytes.NewReader(nil))
	if _, err := io.ReadAll(d); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d.Sum() != want {
		t.Errorf("Sum() = %x, want %x", d.Sum(), want)
	}
}
