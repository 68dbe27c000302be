package uploadservice

import (
	"errors"

	"github.com/rudelblinken/firmware/pkg/filesystem"
	"github.com/rudelblinken/firmware/pkg/storage"
	"github.com/rudelblinken/firmware/pkg/upload"
	"github.com/rudelblinken/firmware/pkg/vfile"
)

// Error discriminants served by the LAST_ERROR characteristic. The
// values are part of the BLE protocol: the host-side uploader switches
// on them to decide between retrying chunks, restarting the upload, and
// giving up. 0 is never used so an all-zero read cannot be mistaken for
// a real code.
const (
	codeUnknown             = 0x01
	codeMalformedRequest    = 0x02
	codeNoActiveUpload      = 0x03
	codeChunkTooShort       = 0x04
	codeChunkIndexRange     = 0x05
	codeWrongChunkLength    = 0x06
	codeWrongChecksum       = 0x07
	codeNotComplete         = 0x08
	codeHashMismatch        = 0x09
	codeChecksumFileMissing = 0x0A
	codeWrongChecksumCount  = 0x0B
	codeNoFreeSpace         = 0x10
	codeNotEnoughSpace      = 0x11
	codeFileNotFound        = 0x12
	codeStorageWrite        = 0x20
	codeStorageVerify       = 0x21
	codeFileLifetime        = 0x30
)

// errorCode collapses an error chain to its wire discriminant.
func errorCode(err error) byte {
	switch {
	case errors.Is(err, upload.ErrMalformedRequest):
		return codeMalformedRequest
	case errors.Is(err, upload.ErrNoActiveUpload):
		return codeNoActiveUpload
	case errors.Is(err, upload.ErrChunkTooShort):
		return codeChunkTooShort
	case errors.Is(err, upload.ErrChunkIndexOutOfRange):
		return codeChunkIndexRange
	case errors.Is(err, upload.ErrWrongChunkLength):
		return codeWrongChunkLength
	case errors.Is(err, upload.ErrWrongChecksum):
		return codeWrongChecksum
	case errors.Is(err, upload.ErrNotComplete):
		return codeNotComplete
	case errors.Is(err, upload.ErrHashMismatch):
		return codeHashMismatch
	case errors.Is(err, upload.ErrChecksumFileNotFound):
		return codeChecksumFileMissing
	case errors.Is(err, upload.ErrWrongChecksumCount):
		return codeWrongChecksumCount
	case errors.Is(err, filesystem.ErrNoFreeSpace):
		return codeNoFreeSpace
	case errors.Is(err, filesystem.ErrNotEnoughSpace):
		return codeNotEnoughSpace
	case errors.Is(err, filesystem.ErrFileNotFound):
		return codeFileNotFound
	case errors.Is(err, storage.ErrWriteVerifyFailed):
		return codeStorageVerify
	case errors.Is(err, storage.ErrOutOfRange),
		errors.Is(err, storage.ErrBitSetWithoutErase):
		return codeStorageWrite
	case errors.Is(err, vfile.ErrMarkedForDeletion),
		errors.Is(err, vfile.ErrInvalidated),
		errors.Is(err, vfile.ErrNotReady),
		errors.Is(err, vfile.ErrIncompleteCommit):
		return codeFileLifetime
	default:
		return codeUnknown
	}
}
