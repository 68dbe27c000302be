package wasmhost

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rudelblinken/firmware/pkg/blegatt"
)

func newTestHost(cfg Config) (*Host, *SimulatedHardware, *blegatt.Loopback) {
	hw := NewSimulatedHardware(4, LedColor{R: 255})
	ble := blegatt.NewLoopback()
	h := New(cfg, hw, ble,
		func() string { return "Seneca-Ocean" },
		func() []byte { return []byte{0xCA, 0xFE} },
	)
	return h, hw, ble
}

func TestYieldRefuels(t *testing.T) {
	h, _, _ := newTestHost(Config{ResetFuel: 1000})

	require.NoError(t, h.ConsumeFuel(900))
	require.Equal(t, uint64(100), h.Fuel())

	fuel, err := h.Yield(0, func(Event) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(1000), fuel)
	require.Equal(t, uint64(1000), h.Fuel())
}

func TestConsumeFuelExhaustion(t *testing.T) {
	h, _, _ := newTestHost(Config{ResetFuel: 10})
	require.NoError(t, h.ConsumeFuel(10))
	require.ErrorIs(t, h.ConsumeFuel(1), ErrFuelExhausted)
}

// Event callbacks run under a fresh fuel budget and the interrupted
// budget comes back afterwards, so BLE bursts cannot starve the main
// loop.
func TestEventCallbackFuelIsSavedAndRestored(t *testing.T) {
	h, _, _ := newTestHost(Config{ResetFuel: 1000})
	require.NoError(t, h.ConsumeFuel(700)) // main loop is down to 300

	h.Notify(AdvertisementEvent{Data: []byte{1}})
	h.Notify(AdvertisementEvent{Data: []byte{2}})

	var observed []uint64
	var payloads [][]byte
	_, err := h.Yield(0, func(ev Event) error {
		observed = append(observed, h.Fuel())
		payloads = append(payloads, ev.(AdvertisementEvent).Data)
		// Burn most of the callback budget; it must not leak into the
		// main loop's budget.
		return h.ConsumeFuel(999)
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1000, 1000}, observed)
	require.Equal(t, [][]byte{{1}, {2}}, payloads)

	// Yield's normal return refuels.
	require.Equal(t, uint64(1000), h.Fuel())
}

func TestYieldAbortsOnProgramChange(t *testing.T) {
	h, _, _ := newTestHost(Config{})

	h.Notify(AdvertisementEvent{Data: []byte{1}})
	h.Notify(ProgramChangedEvent{})

	delivered := 0
	_, err := h.Yield(0, func(Event) error {
		delivered++
		return nil
	})
	require.ErrorIs(t, err, ErrProgramChanged)
	require.Equal(t, 1, delivered)
}

func TestYieldPropagatesCallbackError(t *testing.T) {
	h, _, _ := newTestHost(Config{})
	h.Notify(AdvertisementEvent{})

	boom := errors.New("guest trapped")
	_, err := h.Yield(0, func(Event) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestYieldWaitsForLateEvents(t *testing.T) {
	h, _, _ := newTestHost(Config{})

	go func() {
		time.Sleep(5 * time.Millisecond)
		h.Notify(ProgramChangedEvent{})
	}()

	start := time.Now()
	_, err := h.Yield(uint64(time.Second/time.Microsecond), func(Event) error { return nil })
	require.ErrorIs(t, err, ErrProgramChanged)
	require.Less(t, time.Since(start), time.Second/2)
}

func TestTimeIsMonotonicMicros(t *testing.T) {
	h, _, _ := newTestHost(Config{})
	a := h.Time()
	time.Sleep(2 * time.Millisecond)
	b := h.Time()
	require.Greater(t, b, a)
}

func TestNameTruncatesAtUTF8Boundary(t *testing.T) {
	hw := NewSimulatedHardware(1, LedColor{})
	ble := blegatt.NewLoopback()

	tests := []struct {
		name string
		want string
	}{
		{"short", "short"},
		{"exactly-16-bytes", "exactly-16-bytes"},
		{"this-name-is-way-too-long", "this-name-is-way"},
		// 15 ASCII bytes then a 2-byte rune straddling the limit.
		{"exactly-15-byteé", "exactly-15-byte"},
	}
	for _, tt := range tests {
		h := New(Config{}, hw, ble, func() string { return tt.name }, func() []byte { return nil })
		require.Equal(t, tt.want, h.Name())
	}
}

func TestGuestConfigIsCallerOwned(t *testing.T) {
	blob := []byte{1, 2, 3}
	hw := NewSimulatedHardware(1, LedColor{})
	h := New(Config{}, hw, blegatt.NewLoopback(), func() string { return "" }, func() []byte { return blob })

	got := h.GuestConfig()
	got[0] = 0xFF
	require.Equal(t, []byte{1, 2, 3}, blob)
}

func TestConfigureAdvertisementClamps(t *testing.T) {
	h, _, ble := newTestHost(Config{})

	require.NoError(t, h.ConfigureAdvertisement(10, 5000))
	min, max, _, restarts := ble.AdvertisingState()
	require.Equal(t, uint16(400), min)
	require.Equal(t, uint16(1500), max)
	require.Equal(t, 1, restarts)

	// max clamps up to min when below it.
	require.NoError(t, h.ConfigureAdvertisement(800, 500))
	min, max, _, _ = ble.AdvertisingState()
	require.Equal(t, uint16(800), min)
	require.Equal(t, uint16(800), max)
}

func TestSetAdvertisementData(t *testing.T) {
	h, _, ble := newTestHost(Config{})
	require.NoError(t, h.SetAdvertisementData([]byte{0xAA, 0xBB}))
	_, _, data, _ := ble.AdvertisingState()
	require.Equal(t, []byte{0xAA, 0xBB}, data)
}

func TestSimulatedHardwareLedWrites(t *testing.T) {
	h, hw, _ := newTestHost(Config{})

	require.NoError(t, h.SetLeds(2, []uint16{7, 8, 9}))
	// id 4 is out of range and silently dropped.
	require.Equal(t, []uint16{0, 0, 7, 8}, hw.Lux())

	require.NoError(t, h.SetRGB(LedColor{G: 128}, 3))
	require.Equal(t, []uint16{3, 3, 3, 3}, hw.Lux())
	require.Equal(t, LedInfo{Color: LedColor{G: 128}, MaxLux: 255}, h.LedInfo(0))
	require.Equal(t, LedInfo{}, h.LedInfo(99))
}
