package upload

import "encoding/binary"

// RequestSize is the exact wire size of an upload request: hash(32) +
// checksums(32) + file_size(4) + chunk_size(2) + reserved(2).
const RequestSize = 72

// inlineChecksumLimit is the largest chunk count whose checksums travel
// inline in the request's 32-byte checksums field. Above it, the field is
// reinterpreted as the BLAKE3 hash of a previously uploaded file holding
// the full checksums table.
const inlineChecksumLimit = 32

// Request is the decoded START_UPLOAD payload announcing a new upload.
type Request struct {
	// Hash is the BLAKE3 hash the final file content must match.
	Hash [32]byte
	// Checksums carries the per-chunk CRC-8 table inline when
	// ChunkCount() <= 32, or the hash of a checksums manifest file
	// otherwise.
	Checksums [32]byte
	// FileSize is the total content length in bytes.
	FileSize uint32
	// ChunkSize is the size of every chunk but the last, in bytes.
	ChunkSize uint16
}

// ChunkCount returns ceil(FileSize / ChunkSize).
func (r Request) ChunkCount() uint32 {
	return (r.FileSize + uint32(r.ChunkSize) - 1) / uint32(r.ChunkSize)
}

// InlineChecksums reports whether the Checksums field holds the checksum
// table itself rather than a manifest file hash.
func (r Request) InlineChecksums() bool {
	return r.ChunkCount() <= inlineChecksumLimit
}

// UnmarshalRequest decodes the fixed little-endian START_UPLOAD wire
// layout. Any size mismatch or a zero chunk size or file size is a
// malformed request; there is no way to ask for an empty upload.
func UnmarshalRequest(data []byte) (Request, error) {
	var r Request
	if len(data) != RequestSize {
		return r, ErrMalformedRequest
	}
	copy(r.Hash[:], data[0:32])
	copy(r.Checksums[:], data[32:64])
	r.FileSize = binary.LittleEndian.Uint32(data[64:68])
	r.ChunkSize = binary.LittleEndian.Uint16(data[68:70])
	// data[70:72] reserved.
	if r.FileSize == 0 || r.ChunkSize == 0 {
		return r, ErrMalformedRequest
	}
	return r, nil
}

// MarshalBinary encodes r into the START_UPLOAD wire layout. The firmware
// itself only ever decodes requests; encoding exists for the test harness
// standing in for the host-side uploader.
func (r Request) MarshalBinary() []byte {
	buf := make([]byte, RequestSize)
	copy(buf[0:32], r.Hash[:])
	copy(buf[32:64], r.Checksums[:])
	binary.LittleEndian.PutUint32(buf[64:68], r.FileSize)
	binary.LittleEndian.PutUint16(buf[68:70], r.ChunkSize)
	return buf
}
