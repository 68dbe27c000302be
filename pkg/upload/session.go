// Package upload implements the chunked, CRC-checked, resumable BLE file
// upload: the wire formats of the START_UPLOAD and DATA characteristics
// and the per-upload receive state machine that writes verified chunks
// through a filesystem writer.
package upload

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/filesystem"
	"github.com/rudelblinken/firmware/pkg/vfile"
)

// chunkIndexSize is the length of the little-endian index prefix on every
// DATA payload.
const chunkIndexSize = 2

// Session is the receive state machine for one in-flight upload. Chunks
// may arrive in any order and any number of times; each one is length-
// and checksum-validated before it touches flash, and the received bitmap
// makes redelivery idempotent.
type Session struct {
	hash      [32]byte
	chunkSize uint16
	length    uint32
	checksums []byte
	received  []bool
	name      string
	writer    *filesystem.PendingWriter
}

// NewSession validates req, resolves its checksums descriptor, allocates
// flash for the full declared length and returns a Session ready to
// receive chunks. The file is created under a random "fw-" name; it only
// becomes visible in the filesystem catalog once every chunk has arrived
// and Finish commits it.
func NewSession(fs *filesystem.Filesystem, req Request) (*Session, error) {
	checksums, err := loadChecksums(fs, req)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	name := fmt.Sprintf("fw-%d", binary.LittleEndian.Uint32(id[:4]))
	writer, err := fs.GetFileWriter(name, req.FileSize)
	if err != nil {
		return nil, err
	}

	logger.Info("upload started",
		logger.Filename(name),
		logger.Size(uint64(req.FileSize)),
		logger.ProgramHash(req.Hash),
	)

	return &Session{
		hash:      req.Hash,
		chunkSize: req.ChunkSize,
		length:    req.FileSize,
		checksums: checksums,
		received:  make([]bool, len(checksums)),
		name:      name,
		writer:    writer,
	}, nil
}

// loadChecksums resolves the request's 32-byte checksums descriptor into
// the full per-chunk table: taken verbatim for small uploads, or read out
// of a previously uploaded manifest file whose hash the descriptor names.
// Manifest files are themselves uploads of at most 32 chunks, so the
// recursion bottoms out after one level.
func loadChecksums(fs *filesystem.Filesystem, req Request) ([]byte, error) {
	count := int(req.ChunkCount())
	if req.InlineChecksums() {
		out := make([]byte, count)
		copy(out, req.Checksums[:count])
		return out, nil
	}

	r, err := fs.ReadFileByHash(req.Checksums)
	if err != nil {
		return nil, ErrChecksumFileNotFound
	}
	defer r.Close()

	table, err := r.Bytes()
	if err != nil {
		return nil, fmt.Errorf("upload: read checksums file: %w", err)
	}
	if len(table) != count {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongChecksumCount, count, len(table))
	}
	return table, nil
}

// Hash returns the hash the final content was declared to have.
func (s *Session) Hash() [32]byte { return s.hash }

// Name returns the randomly generated filesystem name of the upload.
func (s *Session) Name() string { return s.name }

// lastChunkLength returns the expected length of the final chunk: the
// tail of the file, or a full chunk when the length divides evenly.
func (s *Session) lastChunkLength() int {
	rem := int(s.length % uint32(s.chunkSize))
	if rem == 0 {
		return int(s.chunkSize)
	}
	return rem
}

// ReceiveChunk handles one DATA payload: a little-endian u16 chunk index
// followed by the chunk bytes. The chunk is validated against the
// session's declared chunk size and checksum table, then written to its
// offset in the pending file.
func (s *Session) ReceiveChunk(payload []byte) error {
	if len(payload) < chunkIndexSize+1 {
		return ErrChunkTooShort
	}
	index := int(binary.LittleEndian.Uint16(payload[:chunkIndexSize]))
	data := payload[chunkIndexSize:]

	if index >= len(s.checksums) {
		return ErrChunkIndexOutOfRange
	}
	expected := int(s.chunkSize)
	if index == len(s.checksums)-1 {
		expected = s.lastChunkLength()
	}
	if len(data) != expected {
		return fmt.Errorf("%w: chunk %d is %d bytes, expected %d", ErrWrongChunkLength, index, len(data), expected)
	}
	if Checksum(data) != s.checksums[index] {
		logger.Warn("rejected upload chunk", logger.Chunk(index), logger.Err(ErrWrongChecksum))
		return ErrWrongChecksum
	}

	if err := s.writer.Seek(uint32(index) * uint32(s.chunkSize)); err != nil {
		return err
	}
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	s.received[index] = true

	logger.Debug("received upload chunk", logger.Chunk(index))
	return nil
}

// Complete reports whether every chunk has been received.
func (s *Session) Complete() bool {
	for _, got := range s.received {
		if !got {
			return false
		}
	}
	return true
}

// ChunkCount returns the total number of chunks in the upload.
func (s *Session) ChunkCount() int { return len(s.received) }

// ReceivedCount returns the number of chunks received so far.
func (s *Session) ReceivedCount() int {
	n := 0
	for _, got := range s.received {
		if got {
			n++
		}
	}
	return n
}

// Missing returns the indices of chunks not yet received, capped at max
// entries. The uploader polls this to re-drive lost chunks; there is no
// protocol-level timeout.
func (s *Session) Missing(max int) []uint16 {
	var missing []uint16
	for i, got := range s.received {
		if got {
			continue
		}
		if len(missing) == max {
			break
		}
		missing = append(missing, uint16(i))
	}
	return missing
}

// Finish commits the fully received file and verifies its content hash
// against the hash the request declared. On a mismatch the committed file
// is deleted again before the error is returned; either way the session
// is spent. On success the new file's Reader is returned.
func (s *Session) Finish(fs *filesystem.Filesystem) (vfile.Reader, error) {
	if !s.Complete() {
		return vfile.Reader{}, ErrNotComplete
	}

	r, err := s.writer.Commit()
	if err != nil {
		return vfile.Reader{}, err
	}

	if r.Hash() != s.hash {
		r.Close()
		if err := fs.Delete(s.name); err != nil {
			logger.Warn("failed to delete mismatched upload", logger.Filename(s.name), logger.Err(err))
		}
		logger.Warn("upload hash mismatch", logger.Filename(s.name), logger.ProgramHash(s.hash))
		return vfile.Reader{}, ErrHashMismatch
	}

	logger.Info("upload verified", logger.Filename(s.name), logger.ProgramHash(s.hash))
	return r, nil
}
