package wasmhost

import "sync"

// LedColor is an RGB triple describing an LED's color.
type LedColor struct {
	R, G, B uint8
}

// LedInfo describes one LED: its color and the maximum brightness value
// it accepts.
type LedInfo struct {
	Color  LedColor
	MaxLux uint16
}

// SensorType tells the guest what kind of reading to expect from a
// sensor, or that none is fitted.
type SensorType uint8

const (
	SensorNone SensorType = iota
	SensorBasic
)

// Hardware is the device surface the host exposes to guests: LED output
// and sensor input. The real drivers (LEDC, ADC) are out of scope; the
// firmware binds them behind this interface at boot.
type Hardware interface {
	// SetLeds drives lux values onto the LEDs starting at firstID.
	// IDs beyond LedCount are ignored, not errors.
	SetLeds(firstID uint16, lux []uint16) error
	// SetRGB drives a single color/brightness onto the whole strip.
	SetRGB(color LedColor, lux uint32) error
	// LedCount returns the number of individually addressable LEDs.
	LedCount() uint16
	// LedInfo describes the LED with the given id; out-of-range ids
	// yield a zero LedInfo.
	LedInfo(id uint16) LedInfo

	AmbientLightType() SensorType
	AmbientLight() uint32
	VibrationType() SensorType
	Vibration() uint32
	VoltageType() SensorType
	Voltage() uint32
}

// SimulatedHardware is the Hardware backend used by tests and the
// emulator harness: one virtual LED strip and fixed sensor readings.
type SimulatedHardware struct {
	mu sync.Mutex

	StripColor LedColor
	MaxLux     uint16

	lux []uint16

	Light     uint32
	VoltageMV uint32
}

// NewSimulatedHardware returns a strip of count LEDs with the given
// color.
func NewSimulatedHardware(count int, color LedColor) *SimulatedHardware {
	return &SimulatedHardware{
		StripColor: color,
		MaxLux:     255,
		lux:        make([]uint16, count),
	}
}

var _ Hardware = (*SimulatedHardware)(nil)

func (s *SimulatedHardware) SetLeds(firstID uint16, lux []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range lux {
		id := int(firstID) + i
		if id >= len(s.lux) {
			break
		}
		s.lux[id] = v
	}
	return nil
}

func (s *SimulatedHardware) SetRGB(color LedColor, lux uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StripColor = color
	for i := range s.lux {
		s.lux[i] = uint16(lux)
	}
	return nil
}

func (s *SimulatedHardware) LedCount() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint16(len(s.lux))
}

func (s *SimulatedHardware) LedInfo(id uint16) LedInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.lux) {
		return LedInfo{}
	}
	return LedInfo{Color: s.StripColor, MaxLux: s.MaxLux}
}

// Lux returns a copy of the current per-LED brightness values.
func (s *SimulatedHardware) Lux() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.lux...)
}

func (s *SimulatedHardware) AmbientLightType() SensorType { return SensorBasic }

func (s *SimulatedHardware) AmbientLight() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Light
}

func (s *SimulatedHardware) VibrationType() SensorType { return SensorNone }
func (s *SimulatedHardware) Vibration() uint32         { return 0 }
func (s *SimulatedHardware) VoltageType() SensorType   { return SensorBasic }

func (s *SimulatedHardware) Voltage() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.VoltageMV
}
