package storage

import "errors"

// Sentinel errors returned by Storage implementations.
var (
	// ErrOutOfRange indicates an address or length falls outside the
	// backing region.
	ErrOutOfRange = errors.New("storage: address out of range")

	// ErrWriteVerifyFailed indicates write_checked read back bytes that
	// did not match what was written, e.g. a degraded flash cell or a
	// power loss mid-write.
	ErrWriteVerifyFailed = errors.New("storage: write verification failed")

	// ErrBitSetWithoutErase indicates a write attempted to transition a
	// bit from 0 to 1 without an intervening block erase.
	ErrBitSetWithoutErase = errors.New("storage: write would set a bit without erase")

	// ErrBlockOutOfRange indicates an erase targeted a block index
	// beyond BlockCount.
	ErrBlockOutOfRange = errors.New("storage: block index out of range")

	// ErrMetadataKeyNotFound indicates the named metadata slot has never
	// been written.
	ErrMetadataKeyNotFound = errors.New("storage: metadata key not found")
)
