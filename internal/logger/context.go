package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context: which BLE peer an
// operation belongs to, what it is doing, and which characteristic it
// came in on. The *Ctx logging functions prepend these fields to every
// record so a chunked upload's dozens of log lines all correlate.
type LogContext struct {
	PeerAddr       string    // BLE peer address (without connection handle)
	Operation      string    // High-level operation: upload, program-swap, etc.
	Service        uint16    // GATT service UUID, 0 if not applicable
	Characteristic uint16    // GATT characteristic UUID, 0 if not applicable
	StartTime      time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given peer address
func NewLogContext(peerAddr string) *LogContext {
	return &LogContext{
		PeerAddr:  peerAddr,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		PeerAddr:       lc.PeerAddr,
		Operation:      lc.Operation,
		Service:        lc.Service,
		Characteristic: lc.Characteristic,
		StartTime:      lc.StartTime,
	}
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(operation string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = operation
	}
	return clone
}

// WithCharacteristic returns a copy with the GATT addressing set
func (lc *LogContext) WithCharacteristic(service, characteristic uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Service = service
		clone.Characteristic = characteristic
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
