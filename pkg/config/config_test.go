package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudelblinken/firmware/internal/bytesize"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadParsesHumanReadableSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: DEBUG
  format: json
storage:
  block_size: 8Ki
  block_count: 128
runtime:
  reset_fuel: 500000
advertising:
  min_interval: 500
  max_interval: 900
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, bytesize.ByteSize(8192), cfg.Storage.BlockSize)
	require.Equal(t, 128, cfg.Storage.BlockCount)
	require.Equal(t, uint64(500000), cfg.Runtime.ResetFuel)
	require.Equal(t, uint16(500), cfg.Advertising.MinInterval)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: LOUD
  format: text
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultDeviceNameIsStableAndBounded(t *testing.T) {
	mac := [6]byte{0xAC, 0x67, 0xB2, 0x01, 0x42, 0x17}
	name := DefaultDeviceName(mac)
	require.Equal(t, name, DefaultDeviceName(mac))
	require.NoError(t, validName([]byte(name)))

	// Exhaust the index space: every derivable name obeys the limits.
	for a := 0; a < 64; a++ {
		for b := 0; b < 64; b++ {
			n := DefaultDeviceName([6]byte{0, 0, 0, 0, byte(a), byte(b)})
			require.NoError(t, validName([]byte(n)), n)
		}
	}
}
