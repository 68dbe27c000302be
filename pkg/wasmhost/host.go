// Package wasmhost implements the environment presented to the guest
// WebAssembly program: time, logging, LED output, sensor reads, BLE
// advertising control, event delivery, and the fuel/yield scheduling
// model. The wazero binding in this package links these host calls into
// a guest instance; everything else is engine-agnostic and testable
// without a guest binary.
package wasmhost

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/blegatt"
)

// DefaultResetFuel is the fuel budget installed on every yield.
const DefaultResetFuel = 999_999

// maxGuestNameLength is the longest device name the guest ever sees.
const maxGuestNameLength = 16

// eventQueueDepth bounds the host-to-guest event queue. A guest that
// never yields loses advertisement events past this depth rather than
// blocking the BLE thread.
const eventQueueDepth = 64

// Config carries the host's runtime tunables.
type Config struct {
	// ResetFuel is the budget installed by every yield and around every
	// event callback. Zero selects DefaultResetFuel.
	ResetFuel uint64
}

// Host is the per-sandbox environment handed to a guest instance. It is
// owned by the ProgramRunner goroutine; the only cross-thread entry
// point is Notify, which the BLE callbacks use to enqueue events.
type Host struct {
	cfg Config

	hw   Hardware
	adv  blegatt.Advertiser
	name func() string
	conf func() []byte

	events chan Event
	start  time.Time
	fuel   uint64
}

// New builds a Host over the given device surfaces. nameFn and configFn
// supply the management service's current device name and guest
// configuration blob at call time, so the guest always observes the
// latest values without the host holding a lock into the control plane.
func New(cfg Config, hw Hardware, adv blegatt.Advertiser, nameFn func() string, configFn func() []byte) *Host {
	if cfg.ResetFuel == 0 {
		cfg.ResetFuel = DefaultResetFuel
	}
	return &Host{
		cfg:    cfg,
		hw:     hw,
		adv:    adv,
		name:   nameFn,
		conf:   configFn,
		events: make(chan Event, eventQueueDepth),
		start:  time.Now(),
		fuel:   cfg.ResetFuel,
	}
}

// Notify enqueues an event for delivery at the guest's next yield. It
// never blocks: when the queue is full the event is dropped, which is
// acceptable for advertisements (the flock re-synchronizes on the next
// one) and avoided for ProgramChanged by the queue depth being far
// larger than the number of outstanding control-plane signals.
func (h *Host) Notify(ev Event) {
	select {
	case h.events <- ev:
	default:
		logger.Warn("guest event queue full, dropping event")
	}
}

// BaseVersion reports the host ABI version to the guest.
func (h *Host) BaseVersion() (major, minor, patch, tag uint8) {
	return BaseVersionMajor, BaseVersionMinor, BaseVersionPatch, BaseVersionTag
}

// Fuel returns the guest's remaining fuel.
func (h *Host) Fuel() uint64 { return h.fuel }

// ConsumeFuel charges cost units against the guest's budget.
func (h *Host) ConsumeFuel(cost uint64) error {
	if h.fuel < cost {
		h.fuel = 0
		return ErrFuelExhausted
	}
	h.fuel -= cost
	return nil
}

// Yield is the cooperative scheduling point. For up to micros
// microseconds of wall time it drains the event queue, delivering each
// advertisement to onEvent under a fresh fuel budget that is restored
// afterwards, so bursts of BLE traffic cannot starve the main loop's
// fuel. A ProgramChanged event aborts the wait with ErrProgramChanged.
// On normal return the fuel is reset and its new value returned.
func (h *Host) Yield(micros uint64, onEvent func(Event) error) (uint64, error) {
	deadline := time.Now().Add(time.Duration(micros) * time.Microsecond)

	for {
		// Drain whatever is already queued before looking at the clock,
		// so a zero-length yield still observes pending events and in
		// particular a pending ProgramChanged.
		select {
		case ev := <-h.events:
			if err := h.deliver(ev, onEvent); err != nil {
				return 0, err
			}
			continue
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			h.fuel = h.cfg.ResetFuel
			return h.fuel, nil
		}
		select {
		case ev := <-h.events:
			if err := h.deliver(ev, onEvent); err != nil {
				return 0, err
			}
		case <-time.After(remaining):
			h.fuel = h.cfg.ResetFuel
			return h.fuel, nil
		}
	}
}

// deliver runs one event callback under a fresh fuel budget, restoring
// the interrupted budget afterwards.
func (h *Host) deliver(ev Event, onEvent func(Event) error) error {
	if _, ok := ev.(ProgramChangedEvent); ok {
		return ErrProgramChanged
	}
	saved := h.fuel
	h.fuel = h.cfg.ResetFuel
	err := onEvent(ev)
	h.fuel = saved
	if err != nil {
		return fmt.Errorf("wasmhost: event callback: %w", err)
	}
	return nil
}

// Sleep blocks for micros microseconds without processing events or
// refueling.
func (h *Host) Sleep(micros uint64) {
	time.Sleep(time.Duration(micros) * time.Microsecond)
}

// Time returns microseconds since the host was created, monotonic.
func (h *Host) Time() uint64 {
	return uint64(time.Since(h.start).Microseconds())
}

// Log routes a guest log line into the host log sink.
func (h *Host) Log(level uint32, msg string) {
	switch level {
	case 0:
		logger.Error(msg, logger.Source("wasm-guest"))
	case 1:
		logger.Warn(msg, logger.Source("wasm-guest"))
	case 2:
		logger.Info(msg, logger.Source("wasm-guest"))
	default:
		logger.Debug(msg, logger.Source("wasm-guest"))
	}
}

// Name returns the device name truncated to at most 16 bytes at a UTF-8
// boundary.
func (h *Host) Name() string {
	name := h.name()
	if len(name) <= maxGuestNameLength {
		return name
	}
	cut := maxGuestNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}

// GuestConfig returns a caller-owned copy of the guest configuration
// blob.
func (h *Host) GuestConfig() []byte {
	return append([]byte(nil), h.conf()...)
}

// SetLeds, SetRGB, LedCount, LedInfo and the sensor reads delegate to
// the bound hardware.
func (h *Host) SetLeds(firstID uint16, lux []uint16) error { return h.hw.SetLeds(firstID, lux) }
func (h *Host) SetRGB(color LedColor, lux uint32) error    { return h.hw.SetRGB(color, lux) }
func (h *Host) LedCount() uint16                           { return h.hw.LedCount() }
func (h *Host) LedInfo(id uint16) LedInfo                  { return h.hw.LedInfo(id) }
func (h *Host) AmbientLightType() SensorType               { return h.hw.AmbientLightType() }
func (h *Host) AmbientLight() uint32                       { return h.hw.AmbientLight() }
func (h *Host) VibrationType() SensorType                  { return h.hw.VibrationType() }
func (h *Host) Vibration() uint32                          { return h.hw.Vibration() }
func (h *Host) VoltageType() SensorType                    { return h.hw.VoltageType() }
func (h *Host) Voltage() uint32                            { return h.hw.Voltage() }

// ConfigureAdvertisement clamps the requested intervals into the
// device's allowed window and restarts advertising with them.
func (h *Host) ConfigureAdvertisement(min, max uint16) error {
	min = clamp(min, 400, 1000)
	max = clamp(max, min, 1500)
	return h.adv.SetIntervals(min, max)
}

// SetAdvertisementData replaces the advertisement's manufacturer payload
// and restarts advertising.
func (h *Host) SetAdvertisementData(data []byte) error {
	return h.adv.SetData(data)
}

func clamp(v, lo, hi uint16) uint16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
