package management

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rudelblinken/firmware/pkg/blegatt"
	"github.com/rudelblinken/firmware/pkg/config"
	"github.com/rudelblinken/firmware/pkg/filesystem"
	"github.com/rudelblinken/firmware/pkg/runner"
	"github.com/rudelblinken/firmware/pkg/storage"
	"github.com/rudelblinken/firmware/pkg/uploadservice"
	"github.com/rudelblinken/firmware/pkg/wasmhost"
)

type fixture struct {
	t       *testing.T
	store   *storage.Simulated
	fs      *filesystem.Filesystem
	devices *config.DeviceStore
	svc     *Service
	ble     *blegatt.Loopback
	started chan []byte
	cancel  context.CancelFunc
}

// newFixture wires a management service over a loopback GATT server and
// a runner whose sandbox launcher just records the program bytes.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewSimulated(4096, 16)
	return newFixtureOn(t, store)
}

func newFixtureOn(t *testing.T, store *storage.Simulated) *fixture {
	t.Helper()
	fs, err := filesystem.Mount(store)
	require.NoError(t, err)

	hw := wasmhost.NewSimulatedHardware(1, wasmhost.LedColor{})
	ble := blegatt.NewLoopback()
	devices := config.OpenDeviceStore(store, "Riley-Kodi")

	started := make(chan []byte, 2)
	run := runner.New(func() *wasmhost.Host {
		return wasmhost.New(wasmhost.Config{}, hw, ble, devices.Name, devices.GuestConfig)
	})
	run.SetLaunch(func(ctx context.Context, host *wasmhost.Host, program []byte) error {
		started <- append([]byte(nil), program...)
		return nil
	})

	uploads := uploadservice.New(fs)
	require.NoError(t, uploads.Register(ble))

	svc := New(devices, uploads, run)
	require.NoError(t, svc.Register(ble))

	ctx, cancel := context.WithCancel(context.Background())
	go run.Run(ctx)
	t.Cleanup(cancel)

	return &fixture{
		t: t, store: store, fs: fs, devices: devices,
		svc: svc, ble: ble, started: started, cancel: cancel,
	}
}

func (f *fixture) write(char uint16, data []byte) error {
	return f.ble.Write(ServiceUUID, char, data)
}

func (f *fixture) read(char uint16) []byte {
	data, err := f.ble.Read(ServiceUUID, char)
	require.NoError(f.t, err)
	return data
}

func (f *fixture) storeProgram(name string, content []byte) [32]byte {
	require.NoError(f.t, f.fs.WriteFile(name, content))
	r, err := f.fs.ReadFileByName(name)
	require.NoError(f.t, err)
	defer r.Close()
	return r.Hash()
}

func (f *fixture) expectStarted(content []byte) {
	select {
	case got := <-f.started:
		require.Equal(f.t, content, got)
	case <-time.After(time.Second):
		f.t.Fatal("program was not started")
	}
}

func TestProgramHashWriteTriggersHotSwap(t *testing.T) {
	f := newFixture(t)
	content := []byte("wasm-module-bytes")
	hash := f.storeProgram("prog", content)

	require.NoError(t, f.write(ProgramHashUUID, hash[:]))
	f.expectStarted(content)
	require.Equal(t, hash[:], f.read(ProgramHashUUID))

	// The selection survived into the device store.
	persisted, err := f.devices.MainProgram()
	require.NoError(t, err)
	require.Equal(t, hash, persisted)
}

func TestProgramHashWriteRejectsUnknownProgram(t *testing.T) {
	f := newFixture(t)
	var missing [32]byte
	missing[0] = 0x55
	require.Error(t, f.write(ProgramHashUUID, missing[:]))
	require.Error(t, f.write(ProgramHashUUID, []byte{1, 2, 3}))
}

func TestAutostartRunsPersistedProgram(t *testing.T) {
	store := storage.NewSimulated(4096, 16)
	f := newFixtureOn(t, store)
	content := []byte("boot-program")
	hash := f.storeProgram("boot", content)
	require.NoError(t, f.write(ProgramHashUUID, hash[:]))
	f.expectStarted(content)
	f.cancel()

	// Reboot: fresh mount and services over the same flash.
	f2 := newFixtureOn(t, store)
	f2.svc.Autostart()
	f2.expectStarted(content)
}

func TestNameCharacteristic(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, []byte("Riley-Kodi"), f.read(NameUUID))

	require.NoError(t, f.write(NameUUID, []byte("Salem-Rio")))
	require.Equal(t, []byte("Salem-Rio"), f.read(NameUUID))

	require.Error(t, f.write(NameUUID, []byte("abc")))
	require.Equal(t, []byte("Salem-Rio"), f.read(NameUUID))
}

func TestStripColorAndGuestConfig(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.write(StripColorUUID, []byte{10, 20, 30}))
	require.Equal(t, []byte{10, 20, 30}, f.read(StripColorUUID))
	require.Error(t, f.write(StripColorUUID, []byte{1}))

	blob := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, f.write(GuestConfigUUID, blob))
	require.Equal(t, blob, f.read(GuestConfigUUID))
}
