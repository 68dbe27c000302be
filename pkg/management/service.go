// Package management implements the device-control BLE façade: writing
// a program hash hot-swaps the running guest, and the device name, LED
// strip color and guest configuration blob are editable and persisted.
package management

import (
	"fmt"
	"sync"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/blegatt"
	"github.com/rudelblinken/firmware/pkg/config"
	"github.com/rudelblinken/firmware/pkg/runner"
	"github.com/rudelblinken/firmware/pkg/uploadservice"
)

// Management service and characteristic UUIDs.
const (
	ServiceUUID     = 0x7992
	ProgramHashUUID = 0x7893
	NameUUID        = 0x7894
	StripColorUUID  = 0x7895
	GuestConfigUUID = 0x7896
)

// Service is the BLE control plane: it persists settings through the
// device store and forwards program selections to the runner. Per the
// module's lock order it never holds its own mutex while calling into
// the upload service or filesystem; its mutex only guards the cached
// program hash.
type Service struct {
	mu          sync.Mutex
	programHash [32]byte

	devices *config.DeviceStore
	uploads *uploadservice.Service
	runner  *runner.Runner
}

// New builds the management service over its collaborators.
func New(devices *config.DeviceStore, uploads *uploadservice.Service, run *runner.Runner) *Service {
	s := &Service{devices: devices, uploads: uploads, runner: run}
	if hash, err := devices.MainProgram(); err == nil {
		s.programHash = hash
	}
	return s
}

// Autostart launches the persisted main program if one is configured
// and its file is still present. Called once at boot, after every
// service is wired but before the device starts accepting BLE traffic.
func (s *Service) Autostart() {
	hash, err := s.devices.MainProgram()
	if err != nil {
		logger.Info("no program to autostart")
		return
	}
	if err := s.startProgram(hash); err != nil {
		logger.Warn("autostart failed", logger.ProgramHash(hash), logger.Err(err))
	}
}

// startProgram resolves hash to a stored file and hands a strong
// reference to the runner, which owns closing it.
func (s *Service) startProgram(hash [32]byte) error {
	weak, err := s.uploads.GetFile(hash)
	if err != nil {
		return fmt.Errorf("management: program lookup: %w", err)
	}
	defer weak.Close()

	reader, err := weak.Upgrade()
	if err != nil {
		return fmt.Errorf("management: program upgrade: %w", err)
	}
	s.runner.Swap(reader)
	logger.Info("program selected", logger.ProgramHash(hash))
	return nil
}

// WriteProgramHash handles a program-hash characteristic write: the
// hash is persisted as the main program, resolved, and sent to the
// runner for an immediate hot-swap.
func (s *Service) WriteProgramHash(data []byte) error {
	if len(data) != 32 {
		return fmt.Errorf("management: program hash must be 32 bytes, got %d", len(data))
	}
	var hash [32]byte
	copy(hash[:], data)

	if err := s.devices.SetMainProgram(hash); err != nil {
		return err
	}
	s.mu.Lock()
	s.programHash = hash
	s.mu.Unlock()

	return s.startProgram(hash)
}

// ProgramHash returns the currently selected program hash.
func (s *Service) ProgramHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.programHash
	return h[:]
}

// Register installs the management characteristics on srv.
func (s *Service) Register(srv blegatt.Server) error {
	return srv.Register(&blegatt.Service{
		UUID: ServiceUUID,
		Characteristics: []*blegatt.Characteristic{
			{
				UUID:       ProgramHashUUID,
				Properties: blegatt.PropRead | blegatt.PropWrite,
				OnRead:     s.ProgramHash,
				OnWrite:    s.WriteProgramHash,
			},
			{
				UUID:       NameUUID,
				Properties: blegatt.PropRead | blegatt.PropWrite,
				OnRead:     func() []byte { return []byte(s.devices.Name()) },
				OnWrite:    s.devices.SetName,
			},
			{
				UUID:       StripColorUUID,
				Properties: blegatt.PropRead | blegatt.PropWrite,
				OnRead: func() []byte {
					rgb := s.devices.StripColor()
					return rgb[:]
				},
				OnWrite: s.devices.SetStripColor,
			},
			{
				UUID:       GuestConfigUUID,
				Properties: blegatt.PropRead | blegatt.PropWrite,
				OnRead:     s.devices.GuestConfig,
				OnWrite:    s.devices.SetGuestConfig,
			},
		},
	})
}
