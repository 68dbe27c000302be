package vfile

import (
	"encoding/binary"
	"fmt"
)

// MetadataSize is the fixed, block-independent size of an on-flash file
// metadata record: flags(2) + reserved(2) + length(4) + hash(32) +
// name(16) + padding(8).
const MetadataSize = 64

const (
	nameSize = 16
	hashSize = 32
)

// Flag bits. The three marker bits on each side exist purely to
// distinguish "a metadata record was written here" from "this is still
// erased flash" (all-ones) without relying on the length or hash fields,
// which may legitimately be all-zero.
//
// The three behavioral bits are stored inverted: erased flash reads 1,
// and each bit is individually cleared to record its event. A freshly
// written record therefore has every behavioral bit set, and the
// lifecycle (ready → marked-for-deletion → deleted) only ever clears
// bits, matching the storage layer's write-only-clears-bits invariant.
const (
	flagMarkerHighA = uint16(1) << 0
	flagMarkerHighB = uint16(1) << 1
	flagMarkerHighC = uint16(1) << 2
	flagMarkerLowA  = uint16(1) << 3
	flagMarkerLowB  = uint16(1) << 4
	flagMarkerLowC  = uint16(1) << 5

	flagNotReady             = uint16(1) << 6
	flagNotMarkedForDeletion = uint16(1) << 7
	flagNotDeleted           = uint16(1) << 8

	markerHighMask = flagMarkerHighA | flagMarkerHighB | flagMarkerHighC
	markerLowMask  = flagMarkerLowA | flagMarkerLowB | flagMarkerLowC
	behaviorMask   = flagNotReady | flagNotMarkedForDeletion | flagNotDeleted

	// freshFlags is the flag word written when a metadata record is
	// first created: marker bits present, every behavioral bit still
	// set (nothing has happened to the file yet).
	freshFlags = markerHighMask | behaviorMask
)

// Metadata is the 64-byte on-flash record describing one file: its
// lifecycle flags, declared length, content hash, and name.
type Metadata struct {
	Flags  uint16
	Length uint32
	Hash   [hashSize]byte
	Name   [nameSize]byte
}

// newMetadata builds the initial in-memory record for a file about to
// be written: marker bits set, all behavioral bits set (not ready, not
// marked for deletion, not deleted), content not yet known.
func newMetadata(name string, length uint32) (Metadata, error) {
	var m Metadata
	if len(name) > nameSize {
		return m, ErrNameTooLong
	}
	m.Flags = freshFlags
	m.Length = length
	copy(m.Name[:], name)
	return m, nil
}

// ValidMarker reports whether the flag word carries the expected
// "record written" marker pattern: high marker bits set, low marker
// bits clear. Erased flash (flags == 0xFFFF) fails this check, as does
// any other corruption of the marker bits.
func (m Metadata) ValidMarker() bool {
	return m.Flags&markerHighMask == markerHighMask && m.Flags&markerLowMask == 0
}

// Ready reports whether the file's content has been committed and
// verified.
func (m Metadata) Ready() bool {
	return m.Flags&flagNotReady == 0
}

// MarkedForDeletion reports whether the file has been marked for
// deletion; existing strong references remain valid but no new Reader
// may be vended.
func (m Metadata) MarkedForDeletion() bool {
	return m.Flags&flagNotMarkedForDeletion == 0
}

// Deleted reports whether the file's content region has been reclaimed.
func (m Metadata) Deleted() bool {
	return m.Flags&flagNotDeleted == 0
}

// NameString returns Name as a string, trimmed at the first NUL byte.
func (m Metadata) NameString() string {
	n := 0
	for n < nameSize && m.Name[n] != 0 {
		n++
	}
	return string(m.Name[:n])
}

func (m *Metadata) setReady()             { m.Flags &^= flagNotReady }
func (m *Metadata) setMarkedForDeletion() { m.Flags &^= flagNotMarkedForDeletion }
func (m *Metadata) setDeleted()           { m.Flags &^= flagNotDeleted }

// MarshalBinary encodes m into the fixed 64-byte on-flash layout.
func (m Metadata) MarshalBinary() []byte {
	buf := make([]byte, MetadataSize)
	binary.LittleEndian.PutUint16(buf[0:2], m.Flags)
	// buf[2:4] reserved, left zero.
	binary.LittleEndian.PutUint32(buf[4:8], m.Length)
	copy(buf[8:8+hashSize], m.Hash[:])
	copy(buf[40:40+nameSize], m.Name[:])
	// buf[56:64] padding, left zero.
	return buf
}

// UnmarshalMetadata decodes a 64-byte on-flash record.
func UnmarshalMetadata(b []byte) (Metadata, error) {
	var m Metadata
	if len(b) != MetadataSize {
		return m, fmt.Errorf("vfile: metadata record must be %d bytes, got %d", MetadataSize, len(b))
	}
	m.Flags = binary.LittleEndian.Uint16(b[0:2])
	m.Length = binary.LittleEndian.Uint32(b[4:8])
	copy(m.Hash[:], b[8:8+hashSize])
	copy(m.Name[:], b[40:40+nameSize])
	return m, nil
}
