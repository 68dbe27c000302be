// Package vfile implements the tri-state file handle (Writer, Reader,
// Weak) that sits directly on top of a content region in pkg/storage:
// metadata encode/decode, reference counting, and the write/commit
// lifecycle of a single file. It has no notion of a directory of files
// or of free-space allocation; that belongs to pkg/filesystem, which
// owns Entry creation and is the only caller that ever constructs one.
package vfile

import (
	"fmt"
	"sync"

	"lukechampine.com/blake3"

	"github.com/rudelblinken/firmware/pkg/storage"
)

// Entry is the shared, refcounted record behind every handle to one
// file. Writer, Reader and Weak are thin views over the same *Entry;
// copying a Writer/Reader/Weak value does not copy the file, it clones
// a reference to it (see Reader.Clone / Weak.Clone).
type Entry struct {
	mu sync.Mutex

	store storage.Storage

	metaAddr    int // address of the 64-byte metadata record
	contentAddr int // address of the content region

	meta Metadata

	strong int
	weak   int

	// invalidated is set once the filesystem physically reclaims this
	// entry's content region. A Weak that observes this must never be
	// allowed to upgrade, even if another, unrelated file has since
	// been allocated at the same address: that reallocation produces a
	// brand new *Entry, and stale Weak values only ever reference the
	// old one.
	invalidated bool

	// writerOpen is true from creation until a successful Commit; Seek,
	// Write and Commit refuse to run once it is false.
	writerOpen bool

	// pos is the Writer's current seek position.
	pos uint32
	// written is the high-water mark of pos ever reached by a write.
	// Commit compares it against the declared length, so writes may
	// arrive in any order (the upload path seeks to index*chunk_size for
	// each chunk as it arrives). Unwritten gaps below the mark are not
	// detected here; upload.Session tracks per-chunk receipt before it
	// commits.
	written uint32
}

// NewEntry constructs the in-memory bookkeeping for a file about to be
// written at the given metadata/content addresses. It is exported only
// for pkg/filesystem, the sole intended caller; nothing else in this
// module should fabricate addresses.
func NewEntry(store storage.Storage, name string, length uint32, metaAddr, contentAddr int) (*Entry, error) {
	meta, err := newMetadata(name, length)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		store:       store,
		metaAddr:    metaAddr,
		contentAddr: contentAddr,
		meta:        meta,
		strong:      1,
		writerOpen:  true,
	}
	// The hash field is left erased (all ones) on flash so that Commit can
	// program the real hash into it later: flash writes only clear bits.
	initial := meta.MarshalBinary()
	for i := 8; i < 8+hashSize; i++ {
		initial[i] = 0xFF
	}
	if err := store.WriteChecked(metaAddr, initial); err != nil {
		return nil, fmt.Errorf("vfile: write initial metadata: %w", err)
	}
	return e, nil
}

// OpenEntry reconstructs an *Entry from a metadata record already
// present on flash, for the filesystem's mount-time scan. The returned
// entry starts with a strong count of zero; the scanner is expected to
// wrap it in a Weak (catalog entries are weak by default) and only
// upgrade when something actually needs the content.
func OpenEntry(store storage.Storage, meta Metadata, metaAddr, contentAddr int) *Entry {
	return &Entry{
		store:       store,
		metaAddr:    metaAddr,
		contentAddr: contentAddr,
		meta:        meta,
	}
}

// MetaAddr and ContentAddr expose the entry's on-flash addresses to the
// owning filesystem for allocation bookkeeping.
func (e *Entry) MetaAddr() int    { return e.metaAddr }
func (e *Entry) ContentAddr() int { return e.contentAddr }

// physAddr maps a logical offset into the content region to a physical
// storage address, wrapping around the end of the medium. A file whose
// reservation crosses the high end of storage back to block 0 (the
// wrap-around allocator's doing, see pkg/filesystem) has a content region
// that is contiguous on the ring but not in a flat address space; every
// content access goes through here so the wrap is the only place that
// needs to know about it.
func (e *Entry) physAddr(offset int) int {
	return (e.contentAddr + offset) % e.store.Size()
}

// readContent reads length bytes of content starting at the logical
// offset, splitting into two Storage reads if the range crosses the wrap.
func (e *Entry) readContent(offset, length int) ([]byte, error) {
	size := e.store.Size()
	start := e.physAddr(offset)
	if start+length <= size {
		return e.store.Read(start, length)
	}
	firstLen := size - start
	first, err := e.store.Read(start, firstLen)
	if err != nil {
		return nil, err
	}
	second, err := e.store.Read(0, length-firstLen)
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}

// writeContent writes data starting at the logical offset, splitting into
// two Storage writes if the range crosses the wrap.
func (e *Entry) writeContent(offset int, data []byte) error {
	size := e.store.Size()
	start := e.physAddr(offset)
	if start+len(data) <= size {
		return e.store.Write(start, data)
	}
	firstLen := size - start
	if err := e.store.Write(start, data[:firstLen]); err != nil {
		return err
	}
	return e.store.Write(0, data[firstLen:])
}

// Metadata returns a copy of the entry's current metadata record.
func (e *Entry) Metadata() Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// StrongCount and WeakCount report the current reference counts, for
// the filesystem's deferred-deletion sweep.
func (e *Entry) StrongCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strong
}

func (e *Entry) WeakCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weak
}

// Invalidate marks the entry as reclaimed; called by the filesystem
// right after it erases the underlying blocks. Any Weak still
// referencing this entry will fail to upgrade from this point on.
func (e *Entry) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidated = true
}

// Writer is an exclusive handle to a file still being written. Only one
// Writer ever exists for a given Entry; it is not cloneable.
type Writer struct{ e *Entry }

// NewWriter wraps a freshly created Entry in a Writer. Callers get this
// from pkg/filesystem's WriteFile/GetFileWriter, not by calling it
// directly.
func NewWriter(e *Entry) Writer { return Writer{e: e} }

// Seek repositions the Writer's write cursor within [0, Length()]. It
// does not touch flash; it only affects where the next Write lands.
func (w Writer) Seek(offset uint32) error {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()

	if !w.e.writerOpen {
		return fmt.Errorf("vfile: seek after commit")
	}
	if offset > w.e.meta.Length {
		return ErrSeekOutOfRange
	}
	w.e.pos = offset
	return nil
}

// Write writes p at the Writer's current cursor position and advances
// the cursor by len(p). It fails if p would carry the cursor past the
// file's declared length.
func (w Writer) Write(p []byte) (int, error) {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()

	if !w.e.writerOpen {
		return 0, fmt.Errorf("vfile: write after commit")
	}
	if uint32(len(p))+w.e.pos > w.e.meta.Length {
		return 0, ErrWriteOverflow
	}
	if err := w.e.writeContent(int(w.e.pos), p); err != nil {
		return 0, fmt.Errorf("vfile: write content: %w", err)
	}
	w.e.pos += uint32(len(p))
	if w.e.pos > w.e.written {
		w.e.written = w.e.pos
	}
	return len(p), nil
}

// Written returns the number of content bytes written so far.
func (w Writer) Written() uint32 {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()
	return w.e.written
}

// Length returns the file's declared total length.
func (w Writer) Length() uint32 {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()
	return w.e.meta.Length
}

// Commit finalizes the file: the full declared length must have been
// written, its BLAKE3 hash is computed and stored, and the READY bit is
// cleared to make the file visible to readers. It returns a Reader
// holding the one strong reference created at NewEntry.
func (w Writer) Commit() (Reader, error) {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()

	if !w.e.writerOpen {
		return Reader{}, fmt.Errorf("vfile: already committed")
	}
	if w.e.written != w.e.meta.Length {
		return Reader{}, ErrIncompleteCommit
	}

	content, err := w.e.readContent(0, int(w.e.meta.Length))
	if err != nil {
		return Reader{}, fmt.Errorf("vfile: read back content for hash: %w", err)
	}
	w.e.meta.Hash = blake3.Sum256(content)

	// Two separate metadata writes: the hash lands (verified) first, and
	// only then does the READY transition flip. Power loss between the
	// two leaves a not-ready record the next mount discards, never a
	// ready record with a half-written hash.
	if err := w.e.store.WriteChecked(w.e.metaAddr, w.e.meta.MarshalBinary()); err != nil {
		return Reader{}, fmt.Errorf("vfile: commit hash: %w", err)
	}
	w.e.meta.setReady()
	if err := w.e.store.WriteChecked(w.e.metaAddr, w.e.meta.MarshalBinary()); err != nil {
		return Reader{}, fmt.Errorf("vfile: commit ready flag: %w", err)
	}
	w.e.writerOpen = false
	return Reader{e: w.e}, nil
}

// Reader is a strong reference to a committed, ready file. As long as
// at least one Reader (or a Writer mid-commit) exists, the filesystem
// will not reclaim the file's blocks even if it has been marked for
// deletion.
type Reader struct{ e *Entry }

// Name returns the file's name.
func (r Reader) Name() string { return r.e.Metadata().NameString() }

// Hash returns the file's BLAKE3 content hash.
func (r Reader) Hash() [32]byte { return r.e.Metadata().Hash }

// Length returns the file's content length in bytes.
func (r Reader) Length() uint32 { return r.e.Metadata().Length }

// Bytes reads and returns the file's full content.
func (r Reader) Bytes() ([]byte, error) {
	meta := r.e.Metadata()
	data, err := r.e.readContent(0, int(meta.Length))
	if err != nil {
		return nil, fmt.Errorf("vfile: read content: %w", err)
	}
	return data, nil
}

// ReadAt reads length bytes of content starting at offset, for chunked
// or streaming consumers (e.g. the WASM host loading guest bytecode).
func (r Reader) ReadAt(offset, length int) ([]byte, error) {
	meta := r.e.Metadata()
	if offset < 0 || length < 0 || offset+length > int(meta.Length) {
		return nil, fmt.Errorf("vfile: read range out of bounds")
	}
	data, err := r.e.readContent(offset, length)
	if err != nil {
		return nil, fmt.Errorf("vfile: read content: %w", err)
	}
	return data, nil
}

// Entry exposes the underlying shared record, for pkg/filesystem's
// catalog and cleanup bookkeeping.
func (r Reader) Entry() *Entry { return r.e }

// Clone returns a new Reader sharing the same Entry, incrementing the
// strong count.
func (r Reader) Clone() Reader {
	r.e.mu.Lock()
	r.e.strong++
	r.e.mu.Unlock()
	return Reader{e: r.e}
}

// Downgrade returns a Weak reference to the same file and releases this
// Reader's strong reference.
func (r Reader) Downgrade() Weak {
	r.e.mu.Lock()
	r.e.weak++
	r.e.mu.Unlock()
	r.Close()
	return Weak{e: r.e}
}

// Close releases this Reader's strong reference. Once the last strong
// reference is released, the filesystem's cleanup sweep is free to
// reclaim the file if it has been marked for deletion.
func (r Reader) Close() {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	if r.e.strong > 0 {
		r.e.strong--
	}
}

// Weak is a catalog-only reference to a file: it keeps the *Entry
// object alive in Go's sense but places no claim on the file's flash
// region. Filesystem scans hand out Weak values for files they have not
// been asked to read yet.
type Weak struct{ e *Entry }

// NewWeak wraps an Entry in a Weak reference, for the filesystem's
// mount-time scan.
func NewWeak(e *Entry) Weak {
	e.mu.Lock()
	e.weak++
	e.mu.Unlock()
	return Weak{e: e}
}

// Name returns the file's name without requiring an upgrade.
func (w Weak) Name() string { return w.e.Metadata().NameString() }

// Hash returns the file's content hash without requiring an upgrade.
func (w Weak) Hash() [32]byte { return w.e.Metadata().Hash }

// Entry exposes the underlying shared record.
func (w Weak) Entry() *Entry { return w.e }

// Clone returns a new Weak sharing the same Entry, incrementing the
// weak count.
func (w Weak) Clone() Weak {
	w.e.mu.Lock()
	w.e.weak++
	w.e.mu.Unlock()
	return Weak{e: w.e}
}

// Close releases this Weak reference.
func (w Weak) Close() {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()
	if w.e.weak > 0 {
		w.e.weak--
	}
}

// Upgrade attempts to obtain a strong Reader from a Weak reference. It
// fails if the entry has been invalidated by reclamation, if the file
// has been marked for deletion, or if it was never successfully
// committed.
func (w Weak) Upgrade() (Reader, error) {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()

	if w.e.invalidated {
		return Reader{}, ErrInvalidated
	}
	if !w.e.meta.ValidMarker() {
		return Reader{}, ErrInvalidMarker
	}
	if w.e.meta.Deleted() {
		return Reader{}, ErrDeleted
	}
	if w.e.meta.MarkedForDeletion() {
		return Reader{}, ErrMarkedForDeletion
	}
	if !w.e.meta.Ready() {
		return Reader{}, ErrNotReady
	}
	w.e.strong++
	return Reader{e: w.e}, nil
}

// MarkForDeletion clears the MARKED_FOR_DELETION bit's inverse flag,
// recording intent to delete. It does not require an upgrade: deletion
// can be requested through a Weak catalog entry directly, matching the
// firmware's "delete by name" path.
func (w Weak) MarkForDeletion() error {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()

	if w.e.meta.MarkedForDeletion() {
		return nil
	}
	m := w.e.meta
	m.setMarkedForDeletion()
	if err := w.e.store.WriteChecked(w.e.metaAddr, m.MarshalBinary()); err != nil {
		return fmt.Errorf("vfile: mark for deletion: %w", err)
	}
	w.e.meta = m
	return nil
}

// MarkDeleted clears the DELETED bit's inverse flag, recording that the
// filesystem has reclaimed this entry's blocks. Called by the
// filesystem's cleanup sweep immediately before erasing the region.
func (w Weak) MarkDeleted() error {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()

	m := w.e.meta
	m.setDeleted()
	if err := w.e.store.WriteChecked(w.e.metaAddr, m.MarshalBinary()); err != nil {
		return fmt.Errorf("vfile: mark deleted: %w", err)
	}
	w.e.meta = m
	return nil
}
