package wasmhost

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/rudelblinken/firmware/internal/logger"
)

// Fuel costs charged per host call. Host calls are the only metering
// points: the interpreter itself runs unmetered between them, which is
// why yield's refuel discipline matters — a guest that never calls into
// the host never spends fuel, but also never observes events, so the
// interesting programs all pay the toll.
const (
	fuelCostCheap  = 1   // time, counters, sensor reads
	fuelCostLog    = 10  // string traffic out of guest memory
	fuelCostLed    = 5   // LED updates
	fuelCostBLE    = 100 // advertising reconfiguration
	fuelCostConfig = 20  // config blob copy into guest memory
)

// Instance is one sandboxed guest program: a wazero runtime with the
// rudel host modules linked and the guest module instantiated. It is
// not safe for concurrent use; the ProgramRunner drives it from a
// single goroutine.
type Instance struct {
	runtime wazero.Runtime
	module  api.Module
	host    *Host

	// abort carries the typed error out of a host call that terminated
	// the guest, because the engine folds the panic into its own trap
	// type on the way out.
	abort error
}

// NewInstance compiles and instantiates the guest module with the host's
// functions linked under the rudel import modules. The module's run
// entry point is not called yet; that is Run's job.
func NewInstance(ctx context.Context, guest []byte, host *Host) (*Instance, error) {
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true))

	inst := &Instance{runtime: runtime, host: host}
	if err := inst.linkHostModules(ctx); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: link host modules: %w", err)
	}

	module, err := runtime.InstantiateWithConfig(ctx, guest, wazero.NewModuleConfig().
		WithName("program").
		WithStartFunctions())
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: instantiate guest: %w", err)
	}
	inst.module = module

	if module.ExportedFunction(ExportRun) == nil ||
		module.ExportedFunction(ExportRealloc) == nil ||
		module.Memory() == nil {
		_ = runtime.Close(ctx)
		return nil, ErrMissingExport
	}
	return inst, nil
}

// Run invokes the guest's run export and blocks until it returns. A
// termination requested through a host call (program change, fuel
// exhaustion) is unwrapped back into its typed error.
func (i *Instance) Run(ctx context.Context) error {
	_, err := i.module.ExportedFunction(ExportRun).Call(ctx)
	if i.abort != nil {
		return i.abort
	}
	if err != nil {
		return fmt.Errorf("wasmhost: guest trap: %w", err)
	}
	return nil
}

// Close tears the sandbox down, releasing the guest's memory.
func (i *Instance) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}

// fail records err as the instance's typed abort reason and panics to
// unwind the guest; the engine converts the panic into a trap that Run
// translates back via the recorded reason.
func (i *Instance) fail(err error) {
	i.abort = err
	panic(err)
}

// check charges fuel and converts errors into guest-unwinding panics, so
// the individual host call bindings stay one-liners.
func (i *Instance) check(cost uint64) {
	if err := i.host.ConsumeFuel(cost); err != nil {
		i.fail(err)
	}
}

// guestBytes reads a (ptr, len) pair out of guest linear memory.
func (i *Instance) guestBytes(ptr, length uint32) []byte {
	data, ok := i.module.Memory().Read(ptr, length)
	if !ok {
		i.fail(ErrGuestMemory)
	}
	return data
}

// writeGuest writes data into guest memory at ptr.
func (i *Instance) writeGuest(ptr uint32, data []byte) {
	if !i.module.Memory().Write(ptr, data) {
		i.fail(ErrGuestMemory)
	}
}

// allocGuest places data into fresh guest memory via the guest's
// cabi_realloc export and returns the pointer/length pair packed into a
// u64 (pointer in the high half), the conventional flattening for a
// returned list.
func (i *Instance) allocGuest(ctx context.Context, data []byte) uint64 {
	results, err := i.module.ExportedFunction(ExportRealloc).Call(ctx,
		0, 0, 1, uint64(len(data)))
	if err != nil {
		i.fail(fmt.Errorf("wasmhost: cabi_realloc: %w", err))
	}
	ptr := uint32(results[0])
	if len(data) > 0 {
		i.writeGuest(ptr, data)
	}
	return uint64(ptr)<<32 | uint64(uint32(len(data)))
}

// onEvent delivers one event into the guest's on-event export, if the
// guest provides one. The advertisement payload is handed over as
// sender address (6 bytes) followed by the manufacturer data.
func (i *Instance) onEvent(ctx context.Context, ev Event) error {
	fn := i.module.ExportedFunction(ExportOnEvent)
	if fn == nil {
		return nil
	}
	adv, ok := ev.(AdvertisementEvent)
	if !ok {
		return nil
	}
	payload := make([]byte, 0, 6+len(adv.Data))
	payload = append(payload, adv.Address[:]...)
	payload = append(payload, adv.Data...)
	packed := i.allocGuest(ctx, payload)
	_, err := fn.Call(ctx, packed>>32, packed&0xFFFFFFFF)
	return err
}

// linkHostModules instantiates the three rudel host import modules.
func (i *Instance) linkHostModules(ctx context.Context) error {
	base := i.runtime.NewHostModuleBuilder(ModuleBase)
	base.NewFunctionBuilder().WithFunc(func(ctx context.Context, ptr uint32) {
		i.check(fuelCostCheap)
		major, minor, patch, tag := i.host.BaseVersion()
		i.writeGuest(ptr, []byte{major, minor, patch, tag})
	}).Export("get-base-version")
	base.NewFunctionBuilder().WithFunc(func(ctx context.Context, micros uint64) uint32 {
		fuel, err := i.host.Yield(micros, func(ev Event) error { return i.onEvent(ctx, ev) })
		if err != nil {
			if !errors.Is(err, ErrProgramChanged) {
				logger.Warn("guest yield failed", logger.Err(err))
			}
			i.fail(err)
		}
		return uint32(fuel)
	}).Export("yield-now")
	base.NewFunctionBuilder().WithFunc(func(micros uint64) {
		i.check(fuelCostCheap)
		i.host.Sleep(micros)
	}).Export("sleep")
	base.NewFunctionBuilder().WithFunc(func() uint64 {
		i.check(fuelCostCheap)
		return i.host.Time()
	}).Export("time")
	base.NewFunctionBuilder().WithFunc(func(level, ptr, length uint32) {
		i.check(fuelCostLog)
		i.host.Log(level, string(i.guestBytes(ptr, length)))
	}).Export("log")
	base.NewFunctionBuilder().WithFunc(func(ctx context.Context) uint64 {
		i.check(fuelCostCheap)
		return i.allocGuest(ctx, []byte(i.host.Name()))
	}).Export("get-name")
	base.NewFunctionBuilder().WithFunc(func(ctx context.Context) uint64 {
		i.check(fuelCostConfig)
		return i.allocGuest(ctx, i.host.GuestConfig())
	}).Export("get-config")
	if _, err := base.Instantiate(ctx); err != nil {
		return err
	}

	hardware := i.runtime.NewHostModuleBuilder(ModuleHardware)
	hardware.NewFunctionBuilder().WithFunc(func(ctx context.Context, ptr uint32) {
		i.check(fuelCostCheap)
		major, minor, patch, tag := i.host.BaseVersion()
		i.writeGuest(ptr, []byte{major, minor, patch, tag})
	}).Export("get-hardware-version")
	hardware.NewFunctionBuilder().WithFunc(func(firstID, ptr, count uint32) uint32 {
		i.check(fuelCostLed)
		raw := i.guestBytes(ptr, count*2)
		lux := make([]uint16, count)
		for n := range lux {
			lux[n] = binary.LittleEndian.Uint16(raw[n*2:])
		}
		if err := i.host.SetLeds(uint16(firstID), lux); err != nil {
			return 1
		}
		return 0
	}).Export("set-leds")
	hardware.NewFunctionBuilder().WithFunc(func(r, g, b, lux uint32) uint32 {
		i.check(fuelCostLed)
		if err := i.host.SetRGB(LedColor{R: uint8(r), G: uint8(g), B: uint8(b)}, lux); err != nil {
			return 1
		}
		return 0
	}).Export("set-rgb")
	hardware.NewFunctionBuilder().WithFunc(func() uint32 {
		i.check(fuelCostCheap)
		return uint32(i.host.LedCount())
	}).Export("led-count")
	hardware.NewFunctionBuilder().WithFunc(func(id, ptr uint32) {
		i.check(fuelCostCheap)
		info := i.host.LedInfo(uint16(id))
		buf := []byte{info.Color.R, info.Color.G, info.Color.B, 0, 0}
		binary.LittleEndian.PutUint16(buf[3:], info.MaxLux)
		i.writeGuest(ptr, buf)
	}).Export("get-led-info")
	hardware.NewFunctionBuilder().WithFunc(func() uint32 {
		i.check(fuelCostCheap)
		return uint32(i.host.AmbientLightType())
	}).Export("get-ambient-light-type")
	hardware.NewFunctionBuilder().WithFunc(func() uint32 {
		i.check(fuelCostCheap)
		return i.host.AmbientLight()
	}).Export("get-ambient-light")
	hardware.NewFunctionBuilder().WithFunc(func() uint32 {
		i.check(fuelCostCheap)
		return uint32(i.host.VibrationType())
	}).Export("get-vibration-sensor-type")
	hardware.NewFunctionBuilder().WithFunc(func() uint32 {
		i.check(fuelCostCheap)
		return i.host.Vibration()
	}).Export("get-vibration")
	hardware.NewFunctionBuilder().WithFunc(func() uint32 {
		i.check(fuelCostCheap)
		return uint32(i.host.VoltageType())
	}).Export("get-voltage-sensor-type")
	hardware.NewFunctionBuilder().WithFunc(func() uint32 {
		i.check(fuelCostCheap)
		return i.host.Voltage()
	}).Export("get-voltage")
	if _, err := hardware.Instantiate(ctx); err != nil {
		return err
	}

	ble := i.runtime.NewHostModuleBuilder(ModuleBLE)
	ble.NewFunctionBuilder().WithFunc(func(min, max uint32) uint32 {
		i.check(fuelCostBLE)
		if err := i.host.ConfigureAdvertisement(uint16(min), uint16(max)); err != nil {
			logger.Warn("guest advertisement config failed", logger.Err(err))
			return 1
		}
		return 0
	}).Export("configure-advertisement")
	ble.NewFunctionBuilder().WithFunc(func(ptr, length uint32) uint32 {
		i.check(fuelCostBLE)
		data := append([]byte(nil), i.guestBytes(ptr, length)...)
		if err := i.host.SetAdvertisementData(data); err != nil {
			logger.Warn("guest advertisement data failed", logger.Err(err))
			return 1
		}
		return 0
	}).Export("set-advertisement-data")
	if _, err := ble.Instantiate(ctx); err != nil {
		return err
	}
	return nil
}
