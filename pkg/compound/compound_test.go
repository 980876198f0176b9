package compound

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/backend/memory"
	"github.com/imgstash/imgstash/pkg/catalog"
	"github.com/imgstash/imgstash/pkg/rescache"
)

func newTestManager(t *testing.T) (*Manager, *memory.Backend) {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	svc := memory.New()
	return New(cat, svc, rescache.New(1<<20)), svc
}

func openerFor(data []byte) Open {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func defaultUploadOptions() UploadOptions {
	return UploadOptions{
		FragmentSize:            4,
		FirstLayer:              api.EncapsulationSpec{Compressor: api.CompressorNone, Wrapper: api.WrapperIdentity},
		SecondLayer:             api.EncapsulationSpec{Compressor: api.CompressorNone, Wrapper: api.WrapperIdentity},
		MaxFragmentsPerResource: 2,
		TargetResourceSize:      1 << 20,
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	data := []byte("the quick brown fox jumps over the lazy dog")

	if err := mgr.Upload(ctx, "fox.txt", openerFor(data), defaultUploadOptions()); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	var out bytes.Buffer
	if err := mgr.Download(ctx, "fox.txt", &out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("Download produced %q, want %q", out.Bytes(), data)
	}
}

func TestUploadDeduplicatesRepeatedFragments(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	// "aaaa" repeated three times over 4-byte fragments: one distinct
	// fragment, three occurrences.
	data := bytes.Repeat([]byte("aaaa"), 3)

	if err := mgr.Upload(ctx, "repeats.bin", openerFor(data), defaultUploadOptions()); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	stat, err := mgr.Statistic(ctx, 1<<20)
	if err != nil {
		t.Fatalf("Statistic: %v", err)
	}
	if stat.LiveFragmentCount != 1 {
		t.Fatalf("expected 1 distinct live fragment after dedup, got %d", stat.LiveFragmentCount)
	}
	if stat.DedupRatio != 3.0 {
		t.Fatalf("expected dedup ratio 3.0 for a fragment referenced three times, got %.2f", stat.DedupRatio)
	}

	var out bytes.Buffer
	if err := mgr.Download(ctx, "repeats.bin", &out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("Download produced %q, want %q (order must be preserved despite dedup)", out.Bytes(), data)
	}
}

func TestUploadExistingNameWithoutUpdateFails(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	data := []byte("version one")

	if err := mgr.Upload(ctx, "doc", openerFor(data), defaultUploadOptions()); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	err := mgr.Upload(ctx, "doc", openerFor([]byte("version two")), defaultUploadOptions())
	if !errors.Is(err, apierr.ErrCompoundExists) {
		t.Fatalf("expected ErrCompoundExists, got %v", err)
	}
}

func TestUploadUpdateSkipsUnchangedSource(t *testing.T) {
	mgr, svc := newTestManager(t)
	ctx := context.Background()
	data := []byte("stable content")

	opts := defaultUploadOptions()
	if err := mgr.Upload(ctx, "stable", openerFor(data), opts); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	before, err := mgr.Statistic(ctx, 1<<20)
	if err != nil {
		t.Fatalf("Statistic: %v", err)
	}

	opts.Update = true
	opts.Overwrite = true
	if err := mgr.Upload(ctx, "stable", openerFor(data), opts); err != nil {
		t.Fatalf("update Upload with identical content: %v", err)
	}

	after, err := mgr.Statistic(ctx, 1<<20)
	if err != nil {
		t.Fatalf("Statistic: %v", err)
	}
	if after.ResourceCount != before.ResourceCount {
		t.Fatalf("expected unchanged update to seal no new resources, before=%d after=%d", before.ResourceCount, after.ResourceCount)
	}
	_ = svc
}

func TestUploadOverwriteReplacesExistingCompound(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	opts := defaultUploadOptions()
	if err := mgr.Upload(ctx, "doc", openerFor([]byte("version one")), opts); err != nil {
		t.Fatalf("first Upload: %v", err)
	}

	opts.Overwrite = true
	if err := mgr.Upload(ctx, "doc", openerFor([]byte("version two")), opts); err != nil {
		t.Fatalf("overwrite Upload: %v", err)
	}

	var out bytes.Buffer
	if err := mgr.Download(ctx, "doc", &out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if out.String() != "version two" {
		t.Fatalf("Download after overwrite = %q, want %q", out.String(), "version two")
	}
}

func TestDownloadDetectsTotalHashMismatch(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	data := []byte("the total hash covers the whole reassembled stream")

	if err := mgr.Upload(ctx, "doc", openerFor(data), defaultUploadOptions()); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// Corrupt the stored total_hash directly, simulating catalog bit rot
	// unrelated to any single fragment or resource.
	if err := mgr.Catalog.Update(func(tx *catalog.Tx) error {
		c, err := tx.GetCompound("doc")
		if err != nil {
			return err
		}
		c.TotalHash[0] ^= 0xFF
		return tx.PutCompound(*c)
	}); err != nil {
		t.Fatalf("corrupting total_hash: %v", err)
	}

	var out bytes.Buffer
	err := mgr.Download(ctx, "doc", &out)
	if !errors.Is(err, apierr.ErrCompoundCorrupt) {
		t.Fatalf("expected ErrCompoundCorrupt after total_hash mismatch, got %v", err)
	}
}

func TestDeleteIsIdempotentAndCleanReclaimsOrphans(t *testing.T) {
	mgr, svc := newTestManager(t)
	ctx := context.Background()
	data := []byte("disposable content, gone soon")

	if err := mgr.Upload(ctx, "temp", openerFor(data), defaultUploadOptions()); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	before, err := mgr.Statistic(ctx, 1<<20)
	if err != nil || before.ResourceCount == 0 {
		t.Fatalf("expected at least one resource after upload, stat=%+v err=%v", before, err)
	}

	if err := mgr.Delete(ctx, "temp"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting again must be a silent no-op.
	if err := mgr.Delete(ctx, "temp"); err != nil {
		t.Fatalf("second Delete (idempotent) returned error: %v", err)
	}

	removed, err := mgr.Clean(ctx, false, 8)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if removed != before.ResourceCount {
		t.Fatalf("Clean reclaimed %d resources, want %d", removed, before.ResourceCount)
	}

	after, err := mgr.Statistic(ctx, 1<<20)
	if err != nil {
		t.Fatalf("Statistic after Clean: %v", err)
	}
	if after.ResourceCount != 0 {
		t.Fatalf("expected no resources left after Clean, got %d", after.ResourceCount)
	}
	_ = svc
}

func TestCleanNeverRemovesAResourceSharedByASurvivingCompound(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	shared := []byte("shared across two compounds")

	if err := mgr.Upload(ctx, "a", openerFor(shared), defaultUploadOptions()); err != nil {
		t.Fatalf("Upload a: %v", err)
	}
	if err := mgr.Upload(ctx, "b", openerFor(shared), defaultUploadOptions()); err != nil {
		t.Fatalf("Upload b: %v", err)
	}

	if err := mgr.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete a: %v", err)
	}
	if _, err := mgr.Clean(ctx, false, 8); err != nil {
		t.Fatalf("Clean: %v", err)
	}

	var out bytes.Buffer
	if err := mgr.Download(ctx, "b", &out); err != nil {
		t.Fatalf("Download b after deleting a and cleaning: %v", err)
	}
	if !bytes.Equal(out.Bytes(), shared) {
		t.Fatalf("Download b produced %q, want %q", out.Bytes(), shared)
	}
}
