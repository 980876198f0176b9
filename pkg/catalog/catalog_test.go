package catalog

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/imgstash/imgstash/pkg/api"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestCompoundRoundTrip(t *testing.T) {
	cat := openTestCatalog(t)

	c := Compound{
		Name:             "greeting.txt",
		TotalSize:        11,
		FragmentSize:     4,
		FragmentSequence: []FragmentHash{{1}, {2}},
	}

	if err := cat.Update(func(tx *Tx) error { return tx.PutCompound(c) }); err != nil {
		t.Fatalf("PutCompound: %v", err)
	}

	var got *Compound
	if err := cat.View(func(tx *Tx) error {
		var err error
		got, err = tx.GetCompound("greeting.txt")
		return err
	}); err != nil {
		t.Fatalf("GetCompound: %v", err)
	}
	if got == nil || got.TotalSize != 11 || len(got.FragmentSequence) != 2 {
		t.Fatalf("GetCompound returned %+v", got)
	}

	if err := cat.Update(func(tx *Tx) error { return tx.DeleteCompound("greeting.txt") }); err != nil {
		t.Fatalf("DeleteCompound: %v", err)
	}
	if err := cat.View(func(tx *Tx) error {
		got, err := tx.GetCompound("greeting.txt")
		if err != nil {
			return err
		}
		if got != nil {
			t.Errorf("expected no compound after delete, got %+v", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("View after delete: %v", err)
	}
}

func TestFragmentRefcounting(t *testing.T) {
	cat := openTestCatalog(t)
	hash := FragmentHash{0xaa}

	if err := cat.Update(func(tx *Tx) error {
		return tx.IncrementRefcount(hash, 1024, ResourceRef{ResourceID: uuid.New(), Offset: 0, Length: 1024})
	}); err != nil {
		t.Fatalf("IncrementRefcount (create): %v", err)
	}

	if err := cat.Update(func(tx *Tx) error {
		return tx.IncrementRefcount(hash, 1024, ResourceRef{})
	}); err != nil {
		t.Fatalf("IncrementRefcount (bump): %v", err)
	}

	var f *Fragment
	if err := cat.View(func(tx *Tx) error {
		var err error
		f, err = tx.GetFragment(hash)
		return err
	}); err != nil {
		t.Fatalf("GetFragment: %v", err)
	}
	if f == nil || f.Refcount != 2 {
		t.Fatalf("expected refcount 2, got %+v", f)
	}

	var remaining int64
	if err := cat.Update(func(tx *Tx) error {
		var err error
		remaining, err = tx.DecrementRefcount(hash)
		return err
	}); err != nil {
		t.Fatalf("DecrementRefcount: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 remaining reference, got %d", remaining)
	}

	if err := cat.Update(func(tx *Tx) error {
		_, err := tx.DecrementRefcount(hash)
		return err
	}); err != nil {
		t.Fatalf("DecrementRefcount to zero: %v", err)
	}

	if err := cat.View(func(tx *Tx) error {
		f, err := tx.GetFragment(hash)
		if err != nil {
			return err
		}
		if f != nil {
			t.Errorf("expected fragment to be gone at refcount 0, got %+v", f)
		}
		return nil
	}); err != nil {
		t.Fatalf("View after zeroing: %v", err)
	}
}

func TestResourceReverseIndexClearedOnDelete(t *testing.T) {
	cat := openTestCatalog(t)
	resID := uuid.New()
	hashA := FragmentHash{0x01}
	hashB := FragmentHash{0x02}

	if err := cat.Update(func(tx *Tx) error {
		if err := tx.PutFragment(Fragment{Hash: hashA, Size: 4, ResourceRef: ResourceRef{ResourceID: resID}, Refcount: 1}); err != nil {
			return err
		}
		if err := tx.PutFragment(Fragment{Hash: hashB, Size: 4, ResourceRef: ResourceRef{ResourceID: resID}, Refcount: 1}); err != nil {
			return err
		}
		return tx.PutResource(Resource{ID: resID, BackendKind: api.BackendMemory, BackendKey: resID.String(), TotalSize: 8})
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := cat.View(func(tx *Tx) error {
		count := 0
		tx.FragmentHashesForResource(resID.String(), func(FragmentHash) bool { count++; return true })
		if count != 2 {
			t.Errorf("expected 2 fragments indexed for resource, got %d", count)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}

	if err := cat.Update(func(tx *Tx) error { return tx.DeleteResource(resID) }); err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}

	if err := cat.View(func(tx *Tx) error {
		count := 0
		tx.FragmentHashesForResource(resID.String(), func(FragmentHash) bool { count++; return true })
		if count != 0 {
			t.Errorf("expected reverse index cleared after DeleteResource, got %d entries", count)
		}
		if tx.ResourceIsReferenced(resID) {
			t.Errorf("expected resource to no longer be referenced")
		}
		return nil
	}); err != nil {
		t.Fatalf("View after delete: %v", err)
	}
}
