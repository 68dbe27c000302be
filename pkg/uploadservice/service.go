// Package uploadservice exposes the chunked file-upload protocol over
// BLE: five characteristics driving one upload.Session at a time against
// the filesystem. BLE writes have no response channel, so every failure
// on a write path is captured and republished through the LAST_ERROR
// characteristic for the uploader to poll.
package uploadservice

import (
	"encoding/binary"
	"sync"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/blegatt"
	"github.com/rudelblinken/firmware/pkg/filesystem"
	"github.com/rudelblinken/firmware/pkg/upload"
	"github.com/rudelblinken/firmware/pkg/vfile"
)

// File upload service and characteristic UUIDs.
const (
	ServiceUUID     = 0x9160
	DataUUID        = 0x9161
	StartUploadUUID = 0x9162
	ProgressUUID    = 0x9163
	LastErrorUUID   = 0x9164
	CurrentHashUUID = 0x9166
)

// maxReportedMissing caps how many missing chunk indices fit in one
// PROGRESS read.
const maxReportedMissing = 100

// Service is the BLE-facing façade over the upload state machine. All
// characteristic hooks funnel through its mutex; chunk ordering across a
// connection is whatever the peer sends, which is fine because every
// chunk carries its own index.
type Service struct {
	mu sync.Mutex

	fs       *filesystem.Filesystem
	current  *upload.Session
	lastHash [32]byte
	lastErr  error
}

// New creates the service over fs.
func New(fs *filesystem.Filesystem) *Service {
	return &Service{fs: fs}
}

// captureError records err as the most recent failure. Callers pass
// through the return value so the hook signature stays a one-liner.
func (s *Service) captureError(err error) error {
	if err != nil {
		logger.Error("file upload failed", logger.Err(err))
		s.lastErr = err
	}
	return err
}

// StartUpload begins a new upload from a raw START_UPLOAD payload,
// cancelling any session already in flight. The abandoned session's
// writer never commits, so its reservation is invisible to the catalog
// and its blocks are erased again on the next allocation that claims
// them.
func (s *Service) StartUpload(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := upload.UnmarshalRequest(data)
	if err != nil {
		return s.captureError(err)
	}
	session, err := upload.NewSession(s.fs, req)
	if err != nil {
		return s.captureError(err)
	}
	if s.current != nil {
		logger.Warn("cancelling in-flight upload", logger.Filename(s.current.Name()))
	}
	s.current = session
	return nil
}

// WriteData handles one DATA characteristic write. Once the final chunk
// lands the session finishes immediately: the file is committed, hash
// verified, and becomes retrievable by hash.
func (s *Service) WriteData(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return s.captureError(upload.ErrNoActiveUpload)
	}
	if err := s.current.ReceiveChunk(data); err != nil {
		return s.captureError(err)
	}
	if !s.current.Complete() {
		return nil
	}

	session := s.current
	s.current = nil
	r, err := session.Finish(s.fs)
	if err != nil {
		return s.captureError(err)
	}
	s.lastHash = r.Hash()
	r.Close()
	return nil
}

// CurrentHash returns the declared hash of the in-flight upload, or 32
// zero bytes when none is active.
func (s *Service) CurrentHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash [32]byte
	if s.current != nil {
		hash = s.current.Hash()
	}
	return hash[:]
}

// LastHash returns the hash of the most recently completed upload; the
// START_UPLOAD characteristic serves it on reads.
func (s *Service) LastHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.lastHash
	return h[:]
}

// Progress encodes the PROGRESS characteristic value: a little-endian
// u16 count of received chunks followed by up to 100 missing indices.
func (s *Service) Progress() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return []byte{0, 0}
	}
	missing := s.current.Missing(maxReportedMissing)
	out := make([]byte, 2, 2+2*len(missing))
	binary.LittleEndian.PutUint16(out, uint16(s.current.ReceivedCount()))
	for _, index := range missing {
		out = binary.LittleEndian.AppendUint16(out, index)
	}
	return out
}

// LastError returns the one-byte discriminant of the most recent error,
// or an empty slice if nothing has failed yet.
func (s *Service) LastError() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastErr == nil {
		return nil
	}
	return []byte{errorCode(s.lastErr)}
}

// GetFile returns a weak handle to the stored file with the given
// content hash. The management service upgrades it when a program
// actually starts.
func (s *Service) GetFile(hash [32]byte) (vfile.Weak, error) {
	return s.fs.FindByHash(hash)
}

// Register installs the five upload characteristics on srv.
func (s *Service) Register(srv blegatt.Server) error {
	return srv.Register(&blegatt.Service{
		UUID: ServiceUUID,
		Characteristics: []*blegatt.Characteristic{
			{
				UUID:       StartUploadUUID,
				Properties: blegatt.PropRead | blegatt.PropWrite,
				OnRead:     s.LastHash,
				OnWrite:    s.StartUpload,
			},
			{
				UUID:       CurrentHashUUID,
				Properties: blegatt.PropRead,
				OnRead:     s.CurrentHash,
			},
			{
				UUID:       DataUUID,
				Properties: blegatt.PropWrite | blegatt.PropWriteNoResponse,
				OnWrite:    s.WriteData,
			},
			{
				UUID:       ProgressUUID,
				Properties: blegatt.PropRead,
				OnRead:     s.Progress,
			},
			{
				UUID:       LastErrorUUID,
				Properties: blegatt.PropRead,
				OnRead:     s.LastError,
			},
		},
	})
}
