package upload

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"github.com/rudelblinken/firmware/pkg/filesystem"
	"github.com/rudelblinken/firmware/pkg/storage"
)

func newTestFilesystem(t *testing.T) *filesystem.Filesystem {
	t.Helper()
	fs, err := filesystem.Mount(storage.NewSimulated(4096, 64))
	require.NoError(t, err)
	return fs
}

// testContent produces a deterministic byte pattern that differs across
// chunk boundaries, so a chunk landing at the wrong offset is caught.
func testContent(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i>>8 + 13)
	}
	return out
}

func checksumTable(content []byte, chunkSize int) []byte {
	var table []byte
	for off := 0; off < len(content); off += chunkSize {
		end := off + chunkSize
		if end > len(content) {
			end = len(content)
		}
		table = append(table, Checksum(content[off:end]))
	}
	return table
}

func chunkPayload(index int, data []byte) []byte {
	payload := make([]byte, chunkIndexSize+len(data))
	binary.LittleEndian.PutUint16(payload, uint16(index))
	copy(payload[chunkIndexSize:], data)
	return payload
}

// requestFor builds an upload request with inline checksums for content
// of up to 32 chunks.
func requestFor(content []byte, chunkSize int) Request {
	req := Request{
		Hash:      blake3.Sum256(content),
		FileSize:  uint32(len(content)),
		ChunkSize: uint16(chunkSize),
	}
	copy(req.Checksums[:], checksumTable(content, chunkSize))
	return req
}

// deliver sends the chunks named by order through the session.
func deliver(t *testing.T, s *Session, content []byte, chunkSize int, order []int) {
	t.Helper()
	for _, index := range order {
		off := index * chunkSize
		end := off + chunkSize
		if end > len(content) {
			end = len(content)
		}
		require.NoError(t, s.ReceiveChunk(chunkPayload(index, content[off:end])))
	}
}

func sequential(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func reversed(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = n - 1 - i
	}
	return order
}

func TestRequestWireRoundTrip(t *testing.T) {
	req := requestFor(testContent(1000), 100)
	decoded, err := UnmarshalRequest(req.MarshalBinary())
	require.NoError(t, err)
	require.Equal(t, req, decoded)
	require.Equal(t, uint32(10), decoded.ChunkCount())
	require.True(t, decoded.InlineChecksums())
}

func TestUnmarshalRequestRejectsGarbage(t *testing.T) {
	_, err := UnmarshalRequest(make([]byte, RequestSize-1))
	require.ErrorIs(t, err, ErrMalformedRequest)

	var zero [RequestSize]byte
	_, err = UnmarshalRequest(zero[:])
	require.ErrorIs(t, err, ErrMalformedRequest)
}

// S8: a 100 KiB upload with chunk_size=480 goes through a checksums
// manifest file; the final hash matches and the content is retrievable by
// hash afterwards.
func TestLargeUploadWithChecksumManifest(t *testing.T) {
	fs := newTestFilesystem(t)

	content := testContent(100 * 1024)
	const chunkSize = 480
	table := checksumTable(content, chunkSize)
	require.Greater(t, len(table), inlineChecksumLimit)

	// First upload the checksums manifest itself, small enough for
	// inline checksums.
	manifestReq := requestFor(table, len(table))
	manifest, err := NewSession(fs, manifestReq)
	require.NoError(t, err)
	deliver(t, manifest, table, len(table), []int{0})
	r, err := manifest.Finish(fs)
	require.NoError(t, err)
	r.Close()

	// The main upload references the manifest by its hash.
	req := Request{
		Hash:      blake3.Sum256(content),
		Checksums: manifestReq.Hash,
		FileSize:  uint32(len(content)),
		ChunkSize: chunkSize,
	}
	require.False(t, req.InlineChecksums())

	s, err := NewSession(fs, req)
	require.NoError(t, err)
	require.Equal(t, len(table), s.ChunkCount())

	deliver(t, s, content, chunkSize, sequential(s.ChunkCount()))
	require.True(t, s.Complete())

	reader, err := s.Finish(fs)
	require.NoError(t, err)
	defer reader.Close()
	require.Equal(t, req.Hash, reader.Hash())

	got, err := fs.ReadFileByHash(req.Hash)
	require.NoError(t, err)
	defer got.Close()
	data, err := got.Bytes()
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(content, data))
}

// Property 7: delivery order does not affect the final bytes.
func TestOutOfOrderDeliveryMatchesInOrder(t *testing.T) {
	content := testContent(5000)
	const chunkSize = 512
	req := requestFor(content, chunkSize)

	var results [][]byte
	for _, order := range [][]int{
		sequential(int(req.ChunkCount())),
		reversed(int(req.ChunkCount())),
	} {
		fs := newTestFilesystem(t)
		s, err := NewSession(fs, req)
		require.NoError(t, err)
		deliver(t, s, content, chunkSize, order)
		r, err := s.Finish(fs)
		require.NoError(t, err)
		data, err := r.Bytes()
		require.NoError(t, err)
		r.Close()
		results = append(results, data)
	}
	require.Empty(t, cmp.Diff(results[0], results[1]))
}

func TestReceiveChunkValidation(t *testing.T) {
	fs := newTestFilesystem(t)
	content := testContent(1000)
	const chunkSize = 256
	req := requestFor(content, chunkSize)

	s, err := NewSession(fs, req)
	require.NoError(t, err)

	// Too short to even carry an index plus one byte.
	require.ErrorIs(t, s.ReceiveChunk([]byte{0x00, 0x00}), ErrChunkTooShort)

	// Index beyond the chunk count.
	require.ErrorIs(t, s.ReceiveChunk(chunkPayload(99, content[:chunkSize])), ErrChunkIndexOutOfRange)

	// A non-final chunk must be exactly chunkSize bytes.
	require.ErrorIs(t, s.ReceiveChunk(chunkPayload(0, content[:chunkSize-1])), ErrWrongChunkLength)

	// The final chunk must be exactly the tail length.
	require.ErrorIs(t, s.ReceiveChunk(chunkPayload(3, content[768:1000-1])), ErrWrongChunkLength)

	// Corrupted content fails its checksum.
	bad := append([]byte(nil), content[:chunkSize]...)
	bad[17] ^= 0xFF
	require.ErrorIs(t, s.ReceiveChunk(chunkPayload(0, bad)), ErrWrongChecksum)

	// None of the rejects counted as received.
	require.Equal(t, 0, s.ReceivedCount())

	// Valid delivery, including a redelivery, still converges.
	deliver(t, s, content, chunkSize, []int{0, 2, 0, 1})
	require.Equal(t, 3, s.ReceivedCount())
	require.Equal(t, []uint16{3}, s.Missing(100))
	deliver(t, s, content, chunkSize, []int{3})
	require.True(t, s.Complete())
	require.Nil(t, s.Missing(100))
}

func TestFinishRejectsIncompleteAndWrongHash(t *testing.T) {
	fs := newTestFilesystem(t)
	content := testContent(600)
	const chunkSize = 300

	req := requestFor(content, chunkSize)
	s, err := NewSession(fs, req)
	require.NoError(t, err)

	_, err = s.Finish(fs)
	require.ErrorIs(t, err, ErrNotComplete)

	// Declare a wrong final hash: every chunk passes its CRC, but the
	// committed file fails verification and is deleted again.
	lied := req
	lied.Hash[0] ^= 0xFF
	fs2 := newTestFilesystem(t)
	s2, err := NewSession(fs2, lied)
	require.NoError(t, err)
	deliver(t, s2, content, chunkSize, sequential(2))
	_, err = s2.Finish(fs2)
	require.ErrorIs(t, err, ErrHashMismatch)

	_, err = fs2.ReadFileByHash(lied.Hash)
	require.Error(t, err)
	_, err = fs2.ReadFileByName(s2.Name())
	require.Error(t, err)
}

func TestChecksumManifestErrors(t *testing.T) {
	fs := newTestFilesystem(t)
	content := testContent(40 * 480)

	// Reference a manifest that was never uploaded.
	req := Request{
		Hash:      blake3.Sum256(content),
		FileSize:  uint32(len(content)),
		ChunkSize: 480,
	}
	req.Checksums[0] = 0xAB
	_, err := NewSession(fs, req)
	require.ErrorIs(t, err, ErrChecksumFileNotFound)

	// Upload a manifest of the wrong size and reference it.
	short := checksumTable(content, 480)[:10]
	require.NoError(t, fs.WriteFile("fw-manifest", short))
	r, err := fs.ReadFileByName("fw-manifest")
	require.NoError(t, err)
	manifestHash := r.Hash()
	copy(req.Checksums[:], manifestHash[:])
	r.Close()
	_, err = NewSession(fs, req)
	require.ErrorIs(t, err, ErrWrongChecksumCount)
}
