package filesystem

import "errors"

var (
	// ErrFilesystemInconsistent indicates the catalog and the free-space
	// search disagree: a live file had no surrounding free range, which
	// can only happen if two catalog entries overlap.
	ErrFilesystemInconsistent = errors.New("filesystem: catalog is internally inconsistent")

	// ErrNoFreeSpace indicates every block in storage is occupied by a
	// live file.
	ErrNoFreeSpace = errors.New("filesystem: no free space")

	// ErrNotEnoughSpace indicates the longest free interval exists but is
	// smaller than the requested length.
	ErrNotEnoughSpace = errors.New("filesystem: not enough free space")

	// ErrFileNameTooLong indicates a requested name exceeds 16 bytes.
	ErrFileNameTooLong = errors.New("filesystem: file name longer than 16 bytes")

	// ErrFileNotFound indicates no live, ready catalog entry matches the
	// requested name or hash.
	ErrFileNotFound = errors.New("filesystem: file not found")

	// ErrVerifyMismatch indicates the catalog entry produced by a
	// small-path write_file does not match the request that created it.
	ErrVerifyMismatch = errors.New("filesystem: written file does not match request")
)
