package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently
// across all log statements so output stays greppable whether it comes
// from the filesystem, the BLE services, or the WASM runner.
const (
	// ========================================================================
	// BLE Peer & Operation
	// ========================================================================
	KeyPeer           = "peer"           // BLE peer address of the connection
	KeyOperation      = "operation"      // High-level operation: upload, program-swap, ...
	KeyService        = "service"        // GATT service UUID (16-bit, hex)
	KeyCharacteristic = "characteristic" // GATT characteristic UUID (16-bit, hex)

	// ========================================================================
	// File & I/O
	// ========================================================================
	KeyFilename = "filename" // File name in the flash catalog
	KeySize     = "size"     // Length in bytes
	KeyOffset   = "offset"   // Byte offset within a file or region
	KeyCount    = "count"    // Item count (chunks, blocks, entries)

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code (BLE last-error discriminant)
	KeySource     = "source"      // Originating subsystem: wasm-guest, uploader, ...
	KeyAttempt    = "attempt"     // Retry attempt number
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// Peer returns a slog.Attr for a BLE peer address.
func Peer(addr string) slog.Attr {
	return slog.String(KeyPeer, addr)
}

// Operation returns a slog.Attr for a high-level operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Service returns a slog.Attr for a 16-bit GATT service UUID.
func Service(uuid uint16) slog.Attr {
	return slog.String(KeyService, uuid16String(uuid))
}

// Characteristic returns a slog.Attr for a 16-bit GATT characteristic
// UUID.
func Characteristic(uuid uint16) slog.Attr {
	return slog.String(KeyCharacteristic, uuid16String(uuid))
}

// Filename returns a slog.Attr for a catalog file name.
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Size returns a slog.Attr for a length in bytes.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Offset returns a slog.Attr for a byte offset.
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Count returns a slog.Attr for an item count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code.
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr for the originating subsystem.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

const hexDigits = "0123456789abcdef"

// uuid16String formats a 16-bit UUID the way BLE tooling prints them:
// four lowercase hex digits, no prefix.
func uuid16String(uuid uint16) string {
	return string([]byte{
		hexDigits[uuid>>12&0xF],
		hexDigits[uuid>>8&0xF],
		hexDigits[uuid>>4&0xF],
		hexDigits[uuid&0xF],
	})
}
