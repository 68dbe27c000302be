package filesystem

import (
	"errors"
	"testing"

	"github.com/rudelblinken/firmware/pkg/vfile"
)

// S5: a Weak handle obtained before deletion can no longer be upgraded
// afterwards, whether the blocks were reclaimed immediately or not.
func TestWeakUpgradeFailsAfterDeletion(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("victim", []byte("bytes")); err != nil {
		t.Fatal(err)
	}

	r, err := fs.ReadFileByName("victim")
	if err != nil {
		t.Fatal(err)
	}
	hash := r.Hash()
	r.Close()

	weak, err := fs.FindByHash(hash)
	if err != nil {
		t.Fatal(err)
	}
	defer weak.Close()

	upgraded, err := weak.Upgrade()
	if err != nil {
		t.Fatalf("upgrade before deletion: %v", err)
	}
	upgraded.Close()

	// No readers are open, so Delete reclaims immediately and the weak
	// is invalidated by the erase.
	if err := fs.Delete("victim"); err != nil {
		t.Fatal(err)
	}
	if _, err := weak.Upgrade(); err == nil {
		t.Fatal("expected upgrade to fail after deletion")
	}
	if _, err := fs.ReadFileByHash(hash); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

// Upgrades fail with distinct errors for "marked for deletion" (reader
// still open, blocks intact) and "invalidated" (blocks reclaimed).
func TestWeakUpgradeErrorStages(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("victim", []byte("bytes")); err != nil {
		t.Fatal(err)
	}

	reader, err := fs.ReadFileByName("victim")
	if err != nil {
		t.Fatal(err)
	}
	weak, err := fs.FindByHash(reader.Hash())
	if err != nil {
		t.Fatal(err)
	}
	defer weak.Close()

	// Reader open: deletion is deferred, upgrades already refuse.
	if err := fs.Delete("victim"); err != nil {
		t.Fatal(err)
	}
	if _, err := weak.Upgrade(); !errors.Is(err, vfile.ErrMarkedForDeletion) {
		t.Fatalf("err = %v, want ErrMarkedForDeletion", err)
	}

	// Last reader closes, cleanup erases the blocks: the weak now fails
	// as invalidated.
	reader.Close()
	if err := fs.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := weak.Upgrade(); !errors.Is(err, vfile.ErrInvalidated) {
		t.Fatalf("err = %v, want ErrInvalidated", err)
	}
}
