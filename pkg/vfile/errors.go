package vfile

import "errors"

var (
	// ErrInvalidMarker indicates the bytes at an address do not carry a
	// valid file metadata marker pattern (erased flash, half-written
	// metadata, or unrelated content).
	ErrInvalidMarker = errors.New("vfile: invalid metadata marker")

	// ErrNotReady indicates a Reader was requested over metadata whose
	// READY flag is not set.
	ErrNotReady = errors.New("vfile: file is not ready")

	// ErrDeleted indicates the file's content region has been reclaimed.
	ErrDeleted = errors.New("vfile: file has been deleted")

	// ErrMarkedForDeletion indicates upgrade was attempted on a Weak
	// whose file has been marked for deletion; no new Reader may be
	// vended even though existing Readers remain valid.
	ErrMarkedForDeletion = errors.New("vfile: file is marked for deletion")

	// ErrInvalidated indicates upgrade was attempted on a Weak whose
	// backing flash region has since been erased and possibly reused by
	// another file.
	ErrInvalidated = errors.New("vfile: weak reference invalidated by erasure")

	// ErrNameTooLong indicates a name longer than 16 bytes was supplied.
	ErrNameTooLong = errors.New("vfile: name longer than 16 bytes")

	// ErrSeekOutOfRange indicates a Writer seek target fell outside
	// [0, length).
	ErrSeekOutOfRange = errors.New("vfile: seek out of range")

	// ErrWriteOverflow indicates a Writer write would exceed the
	// declared length.
	ErrWriteOverflow = errors.New("vfile: write exceeds declared length")

	// ErrIncompleteCommit indicates Commit was called before any write
	// had reached the end of the declared length.
	ErrIncompleteCommit = errors.New("vfile: commit with incomplete content")

	// ErrHashMismatch indicates a declared hash did not match the
	// computed content hash.
	ErrHashMismatch = errors.New("vfile: hash mismatch")

	// ErrNotWriter / ErrNotWeak name an operation attempted on a handle
	// in the wrong state. The concrete Writer, Reader and Weak types
	// rule such calls out at compile time, so nothing in this package
	// returns them.
	ErrNotWriter = errors.New("vfile: operation requires a Writer")
	ErrNotWeak   = errors.New("vfile: operation requires a Weak handle")
)
