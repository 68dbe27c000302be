package upload

import "errors"

var (
	// ErrMalformedRequest indicates a START_UPLOAD payload that does not
	// decode to a usable request.
	ErrMalformedRequest = errors.New("upload: malformed upload request")

	// ErrNoActiveUpload indicates a chunk arrived while no session was
	// receiving.
	ErrNoActiveUpload = errors.New("upload: no upload active")

	// ErrChunkTooShort indicates a DATA payload shorter than the 2-byte
	// index prefix plus at least one content byte.
	ErrChunkTooShort = errors.New("upload: received chunk is too short")

	// ErrChunkIndexOutOfRange indicates a chunk index at or beyond the
	// session's chunk count.
	ErrChunkIndexOutOfRange = errors.New("upload: chunk index out of range")

	// ErrWrongChunkLength indicates a chunk whose length does not match
	// the declared chunk size (or the final partial size for the last
	// chunk).
	ErrWrongChunkLength = errors.New("upload: chunk has the wrong length")

	// ErrWrongChecksum indicates a chunk whose CRC-8 does not match the
	// session's checksum table.
	ErrWrongChecksum = errors.New("upload: chunk has the wrong checksum")

	// ErrNotComplete indicates Finish was called with chunks still
	// missing.
	ErrNotComplete = errors.New("upload: upload is not complete")

	// ErrHashMismatch indicates the committed file's content hash does
	// not match the hash the request declared.
	ErrHashMismatch = errors.New("upload: file hash does not match request")

	// ErrChecksumFileNotFound indicates the request referenced a
	// checksums manifest file that does not exist.
	ErrChecksumFileNotFound = errors.New("upload: checksums file does not exist")

	// ErrWrongChecksumCount indicates the checksums manifest file's size
	// does not equal the chunk count.
	ErrWrongChecksumCount = errors.New("upload: checksums file has the wrong size")
)
