// Package blegatt defines the minimal GATT surface the firmware's two
// BLE-facing services are written against. The real stack (advertising,
// pairing, MTU negotiation, notification plumbing) lives outside this
// module; services here only declare characteristics with read/write
// hooks and hand them to whatever Server implementation is registered at
// boot. Loopback provides an in-process Server for tests and the
// emulator harness.
package blegatt

import "errors"

// Properties is the GATT property bit set a characteristic advertises.
type Properties uint8

const (
	PropRead Properties = 1 << iota
	PropWrite
	PropWriteNoResponse
)

// Characteristic is one GATT characteristic: a 16-bit UUID, its property
// bits, and the hooks the owning service installs. A nil hook means the
// corresponding operation is rejected by the stack.
type Characteristic struct {
	UUID       uint16
	Properties Properties

	// OnRead produces the characteristic's current value.
	OnRead func() []byte
	// OnWrite consumes a value written by the peer. Errors are for the
	// stack's logging only; BLE writes carry no error channel back to
	// the peer, which is why the upload service mirrors failures into
	// its LAST_ERROR characteristic instead.
	OnWrite func(data []byte) error
}

// Service is a set of characteristics under one 16-bit service UUID.
type Service struct {
	UUID            uint16
	Characteristics []*Characteristic
}

// Server is the slice of a BLE stack this module needs: service
// registration. Implementations must be safe for calls from any
// goroutine.
type Server interface {
	// Register makes a service visible to peers. Registering two
	// services with the same UUID is an error.
	Register(svc *Service) error
}

// Advertiser is the slice of the BLE advertising machinery the WASM host
// exposes to guests: interval configuration and manufacturer-payload
// replacement, each implemented as stop/reconfigure/restart.
type Advertiser interface {
	// SetIntervals updates the advertising interval bounds, in units of
	// 0.625 ms. Values are expected pre-clamped by the caller.
	SetIntervals(min, max uint16) error
	// SetData replaces the advertisement's manufacturer payload.
	SetData(data []byte) error
}

// ErrDuplicateService is returned when a service UUID is registered twice.
var ErrDuplicateService = errors.New("blegatt: service already registered")

// ErrNoSuchCharacteristic is returned by Loopback when a test addresses
// an unregistered characteristic.
var ErrNoSuchCharacteristic = errors.New("blegatt: no such characteristic")
