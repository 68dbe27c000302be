package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/rudelblinken/firmware/internal/logger"
)

// Simulated is an in-process Storage backend over a byte slice. It
// enforces the same write-only-clears-bits discipline as real NOR
// flash, so tests exercise the same power-safety invariants the
// firmware depends on instead of a forgiving mock.
type Simulated struct {
	mu         sync.RWMutex
	blockSize  int
	blockCount int
	data       []byte
	metadata   map[string][]byte
}

var _ Storage = (*Simulated)(nil)

// NewSimulated creates an all-ones (erased) region of blockCount
// blocks of blockSize bytes each.
func NewSimulated(blockSize, blockCount int) *Simulated {
	data := make([]byte, blockSize*blockCount)
	for i := range data {
		data[i] = 0xFF
	}
	return &Simulated{
		blockSize:  blockSize,
		blockCount: blockCount,
		data:       data,
		metadata:   make(map[string][]byte),
	}
}

func (s *Simulated) BlockSize() int  { return s.blockSize }
func (s *Simulated) BlockCount() int { return s.blockCount }
func (s *Simulated) Size() int       { return s.blockSize * s.blockCount }

func (s *Simulated) Read(addr, length int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if addr < 0 || length < 0 || addr+length > len(s.data) {
		return nil, ErrOutOfRange
	}
	out := make([]byte, length)
	copy(out, s.data[addr:addr+length])
	return out, nil
}

func (s *Simulated) Write(addr int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(addr, data)
}

func (s *Simulated) writeLocked(addr int, data []byte) error {
	if addr < 0 || addr+len(data) > len(s.data) {
		return ErrOutOfRange
	}
	for i, b := range data {
		existing := s.data[addr+i]
		if existing&b != b {
			// Some bit in b is 1 where existing already has it 0; that
			// would require setting a bit without an erase.
			return fmt.Errorf("%w: offset %d", ErrBitSetWithoutErase, addr+i)
		}
	}
	copy(s.data[addr:addr+len(data)], data)
	return nil
}

func (s *Simulated) WriteChecked(addr int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(addr, data); err != nil {
		return err
	}
	if !bytes.Equal(s.data[addr:addr+len(data)], data) {
		return ErrWriteVerifyFailed
	}
	return nil
}

func (s *Simulated) Erase(block int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if block < 0 || block >= s.blockCount {
		return ErrBlockOutOfRange
	}
	start := block * s.blockSize
	end := start + s.blockSize
	for i := start; i < end; i++ {
		s.data[i] = 0xFF
	}
	logger.Debug("erased block", "block", block)
	return nil
}

func (s *Simulated) ReadMetadata(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.metadata[key]
	if !ok {
		return nil, ErrMetadataKeyNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Simulated) WriteMetadata(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(data))
	copy(v, data)
	s.metadata[key] = v
	return nil
}
