package blegatt

import (
	"sync"

	"github.com/rudelblinken/firmware/internal/logger"
)

// Loopback is an in-process Server for tests and the emulator harness:
// writes and reads go straight to the registered characteristic hooks,
// serialized per characteristic the way a single BLE connection's ATT
// requests are.
type Loopback struct {
	mu       sync.Mutex
	services map[uint16]*Service

	// one lock per characteristic, keyed by service UUID then char UUID
	charLocks map[uint32]*sync.Mutex

	advMu        sync.Mutex
	advMin       uint16
	advMax       uint16
	advData      []byte
	advRestarted int
}

// NewLoopback returns an empty loopback server.
func NewLoopback() *Loopback {
	return &Loopback{
		services:  make(map[uint16]*Service),
		charLocks: make(map[uint32]*sync.Mutex),
	}
}

var _ Server = (*Loopback)(nil)
var _ Advertiser = (*Loopback)(nil)

func (l *Loopback) Register(svc *Service) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.services[svc.UUID]; ok {
		return ErrDuplicateService
	}
	l.services[svc.UUID] = svc
	for _, c := range svc.Characteristics {
		l.charLocks[charKey(svc.UUID, c.UUID)] = &sync.Mutex{}
	}
	logger.Debug("registered BLE service", "uuid", svc.UUID, "characteristics", len(svc.Characteristics))
	return nil
}

func charKey(service, char uint16) uint32 {
	return uint32(service)<<16 | uint32(char)
}

func (l *Loopback) lookup(service, char uint16) (*Characteristic, *sync.Mutex, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	svc, ok := l.services[service]
	if !ok {
		return nil, nil, ErrNoSuchCharacteristic
	}
	for _, c := range svc.Characteristics {
		if c.UUID == char {
			return c, l.charLocks[charKey(service, char)], nil
		}
	}
	return nil, nil, ErrNoSuchCharacteristic
}

// Write delivers a peer write to a characteristic.
func (l *Loopback) Write(service, char uint16, data []byte) error {
	c, lock, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	if c.OnWrite == nil {
		return ErrNoSuchCharacteristic
	}
	lock.Lock()
	defer lock.Unlock()
	return c.OnWrite(data)
}

// Read performs a peer read of a characteristic.
func (l *Loopback) Read(service, char uint16) ([]byte, error) {
	c, lock, err := l.lookup(service, char)
	if err != nil {
		return nil, err
	}
	if c.OnRead == nil {
		return nil, ErrNoSuchCharacteristic
	}
	lock.Lock()
	defer lock.Unlock()
	return c.OnRead(), nil
}

// SetIntervals records the advertising interval bounds and counts the
// stop/restart cycle.
func (l *Loopback) SetIntervals(min, max uint16) error {
	l.advMu.Lock()
	defer l.advMu.Unlock()
	l.advMin, l.advMax = min, max
	l.advRestarted++
	return nil
}

// SetData records the advertisement's manufacturer payload.
func (l *Loopback) SetData(data []byte) error {
	l.advMu.Lock()
	defer l.advMu.Unlock()
	l.advData = append([]byte(nil), data...)
	l.advRestarted++
	return nil
}

// AdvertisingState reports the last configured intervals, payload, and
// how many stop/restart cycles have happened, for test assertions.
func (l *Loopback) AdvertisingState() (min, max uint16, data []byte, restarts int) {
	l.advMu.Lock()
	defer l.advMu.Unlock()
	return l.advMin, l.advMax, append([]byte(nil), l.advData...), l.advRestarted
}
