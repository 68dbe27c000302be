package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/blegatt"
	"github.com/rudelblinken/firmware/pkg/config"
	"github.com/rudelblinken/firmware/pkg/filesystem"
	"github.com/rudelblinken/firmware/pkg/management"
	"github.com/rudelblinken/firmware/pkg/runner"
	"github.com/rudelblinken/firmware/pkg/storage"
	"github.com/rudelblinken/firmware/pkg/uploadservice"
	"github.com/rudelblinken/firmware/pkg/wasmhost"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Bring up the firmware core and wait",
	RunE: func(cmd *cobra.Command, args []string) error {
		return start()
	},
}

// start brings the firmware up in dependency order: configuration,
// logging, storage, filesystem, services, program runner, and finally
// the persisted program's autostart.
func start() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	store := storage.NewSimulated(int(cfg.Storage.BlockSize.Uint64()), cfg.Storage.BlockCount)
	fs, err := filesystem.Mount(store)
	if err != nil {
		return fmt.Errorf("mount filesystem: %w", err)
	}

	// The host build has no real radio or MAC; the loopback transport
	// and a fixed address stand in for both.
	ble := blegatt.NewLoopback()
	if err := ble.SetIntervals(cfg.Advertising.MinInterval, cfg.Advertising.MaxInterval); err != nil {
		return fmt.Errorf("set advertising intervals: %w", err)
	}
	devices := config.OpenDeviceStore(store, config.DefaultDeviceName([6]byte{0xAC, 0x67, 0xB2, 0, 0, 1}))
	rgb := devices.StripColor()
	hw := wasmhost.NewSimulatedHardware(1, wasmhost.LedColor{R: rgb[0], G: rgb[1], B: rgb[2]})

	run := runner.New(func() *wasmhost.Host {
		return wasmhost.New(
			wasmhost.Config{ResetFuel: cfg.Runtime.ResetFuel},
			hw, ble, devices.Name, devices.GuestConfig,
		)
	})

	uploads := uploadservice.New(fs)
	if err := uploads.Register(ble); err != nil {
		return fmt.Errorf("register upload service: %w", err)
	}
	mgmt := management.New(devices, uploads, run)
	if err := mgmt.Register(ble); err != nil {
		return fmt.Errorf("register management service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go run.Run(ctx)

	mgmt.Autostart()
	logger.Info("firmware core running", "device", devices.Name())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	return nil
}
