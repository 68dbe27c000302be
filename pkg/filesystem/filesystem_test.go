package filesystem

import (
	"errors"
	"testing"

	"github.com/rudelblinken/firmware/pkg/storage"
)

const (
	testBlockSize  = 64
	testBlockCount = 16
)

func newTestStore() *storage.Simulated {
	return storage.NewSimulated(testBlockSize, testBlockCount)
}

// S1: writing and reading a simple file round-trips its content and name.
func TestWriteAndReadSimpleFile(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("hello flash")
	if err := fs.WriteFile("greeting", content); err != nil {
		t.Fatal(err)
	}

	r, err := fs.ReadFileByName("greeting")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content = %q, want %q", got, content)
	}
	if r.Name() != "greeting" {
		t.Fatalf("name = %q, want %q", r.Name(), "greeting")
	}
}

// S2: a second mount of the same backing store rediscovers the file.
func TestMountRediscoversFiles(t *testing.T) {
	store := newTestStore()

	fs1, err := Mount(store)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs1.WriteFile("persisted", []byte("still here")); err != nil {
		t.Fatal(err)
	}

	fs2, err := Mount(store)
	if err != nil {
		t.Fatal(err)
	}
	r, err := fs2.ReadFileByName("persisted")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "still here" {
		t.Fatalf("content = %q", got)
	}
}

// S3: reading a file by its content hash finds the same data as by name.
func TestReadFileByHash(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("by-hash", []byte("content")); err != nil {
		t.Fatal(err)
	}

	byName, err := fs.ReadFileByName("by-hash")
	if err != nil {
		t.Fatal(err)
	}
	hash := byName.Hash()
	byName.Close()

	r, err := fs.ReadFileByHash(hash)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Name() != "by-hash" {
		t.Fatalf("name = %q", r.Name())
	}
}

// S4: deleting a file with no open readers reclaims its space
// immediately, so a file that would not otherwise fit can be written.
func TestDeleteReclaimsSpaceWhenNoReaders(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}

	big := make([]byte, 600) // 11 blocks: two of them do not fit in 16
	if err := fs.WriteFile("big1", big); err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete("big1"); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("big2", big); err != nil {
		t.Fatalf("expected reclaimed space to be reusable: %v", err)
	}
}

// S5/S6: deleting a file that still has an open reader does not make its
// space available; only after the reader closes and Cleanup runs does
// the space free up.
func TestDeleteDefersReclaimUntilReaderCloses(t *testing.T) {
	store := newTestStore()
	fs, err := Mount(store)
	if err != nil {
		t.Fatal(err)
	}

	// Reserve most of the disk with one file, leaving no room for a
	// second same-sized file unless the first's space is reclaimed.
	capacity := testBlockSize * testBlockCount
	big := make([]byte, capacity-256)
	if err := fs.WriteFile("first", big); err != nil {
		t.Fatal(err)
	}

	r, err := fs.ReadFileByName("first")
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete("first"); err != nil {
		t.Fatal(err)
	}

	// Reader is still open: no space should have been reclaimed yet.
	if err := fs.WriteFile("second", big); err == nil {
		t.Fatal("expected write to fail while a reader still holds the deleted file's space")
	}

	r.Close()
	if err := fs.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFile("second", big); err != nil {
		t.Fatalf("expected space to be reclaimed after reader closed and cleanup ran: %v", err)
	}
}

// S7: a file declared larger than the entire storage region cannot be
// written.
func TestWriteFileTooBigFails(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}

	tooBig := make([]byte, testBlockSize*testBlockCount+1)
	if err := fs.WriteFile("too-big", tooBig); err == nil {
		t.Fatal("expected error writing a file larger than all of storage")
	}
}

// Deleting an unknown name reports ErrFileNotFound.
func TestDeleteUnknownFile(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Delete("nope"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

// A streamed write via GetFileWriter that seeks out of order still
// commits correctly once every byte has been covered.
func TestGetFileWriterOutOfOrderChunks(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}

	pw, err := fs.GetFileWriter("chunked", 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := pw.Seek(4); err != nil {
		t.Fatal(err)
	}
	if _, err := pw.Write([]byte("BBBB")); err != nil {
		t.Fatal(err)
	}
	if err := pw.Seek(0); err != nil {
		t.Fatal(err)
	}
	if _, err := pw.Write([]byte("AAAA")); err != nil {
		t.Fatal(err)
	}

	r, err := pw.Commit()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "AAAABBBB" {
		t.Fatalf("content = %q, want AAAABBBB", got)
	}
}

// Allocation wraps a new file's content region around the end of storage
// once deleting an earlier file frees up the low end: the only way a
// 5-block file fits is by combining the freed low end with the high end
// left after a 10-block file, so this also proves writeContent/readContent
// correctly split their flash access across the wrap.
func TestAllocationWrapsAroundStorage(t *testing.T) {
	fs, err := Mount(newTestStore())
	if err != nil {
		t.Fatal(err)
	}

	if err := fs.WriteFile("a", make([]byte, 100)); err != nil { // 3 blocks
		t.Fatal(err)
	}
	if err := fs.WriteFile("b", make([]byte, 576)); err != nil { // 10 blocks
		t.Fatal(err)
	}
	if err := fs.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Cleanup(); err != nil {
		t.Fatal(err)
	}

	content := make([]byte, 250) // 5 blocks; only fits by wrapping
	for i := range content {
		content[i] = byte(i)
	}
	if err := fs.WriteFile("c", content); err != nil {
		t.Fatalf("expected wrap-around allocation to succeed: %v", err)
	}

	r, err := fs.ReadFileByName("c")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(content) {
		t.Fatalf("length = %d, want %d", len(got), len(content))
	}
	for i := range content {
		if got[i] != content[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], content[i])
		}
	}
}
