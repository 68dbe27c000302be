package config

import (
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/storage"
)

// Side-channel keys for the persisted device settings.
const (
	keyDeviceName  = "device.name"
	keyStripColor  = "device.strip_color"
	keyGuestConfig = "device.guest_config"
	keyMainProgram = "device.main_program"
)

// Device name length bounds, in bytes.
const (
	minNameLength = 4
	maxNameLength = 16
)

var (
	// ErrNameLength indicates a device name outside the 4 to 16 byte
	// range.
	ErrNameLength = errors.New("config: device name must be 4 to 16 bytes")

	// ErrNameEncoding indicates a device name that is not valid UTF-8.
	ErrNameEncoding = errors.New("config: device name must be UTF-8")

	// ErrColorLength indicates a strip color that is not exactly three
	// bytes.
	ErrColorLength = errors.New("config: strip color must be 3 bytes")

	// ErrNoMainProgram indicates no program hash has ever been
	// persisted.
	ErrNoMainProgram = errors.New("config: no main program configured")
)

// DeviceStore is the mutable, persisted device state the management
// service edits over BLE: name, strip color, guest configuration blob
// and the selected main program. Values live in the storage layer's
// named-metadata side-channel and are cached in RAM after first read.
// It is safe for concurrent use from the BLE callback threads.
type DeviceStore struct {
	mu    sync.Mutex
	store storage.Storage

	name        string
	stripColor  [3]byte
	guestConfig []byte
	mainProgram *[32]byte
}

// OpenDeviceStore loads the persisted device settings from store.
// Missing values fall back to defaults: fallbackName for the name
// (derived from the MAC address by the caller), warm white for the
// strip, an empty guest configuration, and no main program.
func OpenDeviceStore(store storage.Storage, fallbackName string) *DeviceStore {
	d := &DeviceStore{
		store:      store,
		name:       fallbackName,
		stripColor: [3]byte{0xFF, 0xCC, 0x88},
	}

	if raw, err := store.ReadMetadata(keyDeviceName); err == nil && validName(raw) == nil {
		d.name = string(raw)
	}
	if raw, err := store.ReadMetadata(keyStripColor); err == nil && len(raw) == 3 {
		copy(d.stripColor[:], raw)
	}
	if raw, err := store.ReadMetadata(keyGuestConfig); err == nil {
		d.guestConfig = raw
	}
	if raw, err := store.ReadMetadata(keyMainProgram); err == nil && len(raw) == 32 {
		var hash [32]byte
		copy(hash[:], raw)
		d.mainProgram = &hash
	}

	logger.Info("device settings loaded", "name", d.name, "has_program", d.mainProgram != nil)
	return d
}

func validName(name []byte) error {
	if len(name) < minNameLength || len(name) > maxNameLength {
		return ErrNameLength
	}
	if !utf8.Valid(name) {
		return ErrNameEncoding
	}
	return nil
}

// Name returns the device name.
func (d *DeviceStore) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// SetName validates and persists a new device name.
func (d *DeviceStore) SetName(name []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.WriteMetadata(keyDeviceName, name); err != nil {
		return err
	}
	d.name = string(name)
	return nil
}

// StripColor returns the LED strip's RGB color.
func (d *DeviceStore) StripColor() [3]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stripColor
}

// SetStripColor persists a new three-byte RGB strip color.
func (d *DeviceStore) SetStripColor(rgb []byte) error {
	if len(rgb) != 3 {
		return ErrColorLength
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.WriteMetadata(keyStripColor, rgb); err != nil {
		return err
	}
	copy(d.stripColor[:], rgb)
	return nil
}

// GuestConfig returns a copy of the opaque blob forwarded to the guest.
func (d *DeviceStore) GuestConfig() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.guestConfig...)
}

// SetGuestConfig persists the guest configuration blob verbatim.
func (d *DeviceStore) SetGuestConfig(blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.WriteMetadata(keyGuestConfig, blob); err != nil {
		return err
	}
	d.guestConfig = append([]byte(nil), blob...)
	return nil
}

// MainProgram returns the persisted program hash, or ErrNoMainProgram.
func (d *DeviceStore) MainProgram() ([32]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mainProgram == nil {
		return [32]byte{}, ErrNoMainProgram
	}
	return *d.mainProgram, nil
}

// SetMainProgram persists the hash of the program to run, surviving
// reboots for the boot autostart path.
func (d *DeviceStore) SetMainProgram(hash [32]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.WriteMetadata(keyMainProgram, hash[:]); err != nil {
		return err
	}
	h := hash
	d.mainProgram = &h
	return nil
}
