package logger

import (
	"encoding/hex"
	"log/slog"
)

// Field keys specific to this firmware's domain: flash block accounting,
// BLE upload chunking, and WASM program identity.
const (
	KeyBlock       = "block"        // flash block index
	KeyAddress     = "address"      // byte address within a Storage region
	KeyChunk       = "chunk"        // upload chunk index
	KeyProgramHash = "program_hash" // BLAKE3 hash of a WASM program, hex-encoded
)

// Block returns a slog.Attr for a flash block index.
func Block(b int) slog.Attr {
	return slog.Int(KeyBlock, b)
}

// Address returns a slog.Attr for a byte address within a Storage region.
func Address(addr int) slog.Attr {
	return slog.Int(KeyAddress, addr)
}

// Chunk returns a slog.Attr for an upload chunk index.
func Chunk(index int) slog.Attr {
	return slog.Int(KeyChunk, index)
}

// ProgramHash returns a slog.Attr for a BLAKE3 program hash, hex-encoded.
func ProgramHash(hash [32]byte) slog.Attr {
	return slog.String(KeyProgramHash, hex.EncodeToString(hash[:]))
}
