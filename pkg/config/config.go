// Package config holds the firmware's configuration, in two layers: the
// static runtime configuration loaded at boot (viper over a YAML file
// and RUDEL_* environment variables), and the mutable device settings
// (name, strip color, selected program) persisted through the storage
// side-channel so they survive reboots.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rudelblinken/firmware/internal/bytesize"
)

// Config is the static runtime configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (RUDEL_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// RUDEL_* variables override only keys that the configuration file sets;
// without a configuration file, Load returns the defaults and does not
// consult the environment.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Storage describes the flash region geometry.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Runtime tunes the WebAssembly host.
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`

	// Advertising holds the default BLE advertising intervals, in
	// 0.625 ms units, used until a guest reconfigures them.
	Advertising AdvertisingConfig `mapstructure:"advertising" yaml:"advertising"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format selects the output encoding: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// StorageConfig describes the flash region the filesystem runs on.
type StorageConfig struct {
	// BlockSize is the erase granularity; accepts human-readable sizes
	// like "4Ki".
	BlockSize bytesize.ByteSize `mapstructure:"block_size" validate:"required" yaml:"block_size"`

	// BlockCount is the number of blocks in the region.
	BlockCount int `mapstructure:"block_count" validate:"required,gt=0" yaml:"block_count"`
}

// RuntimeConfig tunes the WebAssembly host.
type RuntimeConfig struct {
	// ResetFuel is the fuel budget installed on every yield.
	ResetFuel uint64 `mapstructure:"reset_fuel" validate:"required,gt=0" yaml:"reset_fuel"`
}

// AdvertisingConfig holds the default advertising interval bounds.
type AdvertisingConfig struct {
	MinInterval uint16 `mapstructure:"min_interval" validate:"required,gte=400,lte=1000" yaml:"min_interval"`
	MaxInterval uint16 `mapstructure:"max_interval" validate:"required,gtefield=MinInterval,lte=1500" yaml:"max_interval"`
}

// Default returns the built-in configuration: a 2 MiB flash region of
// 4 KiB blocks, the standard fuel budget, and mid-range advertising.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
		Storage: StorageConfig{
			BlockSize:  4 * 1024,
			BlockCount: 512,
		},
		Runtime:     RuntimeConfig{ResetFuel: 999_999},
		Advertising: AdvertisingConfig{MinInterval: 400, MaxInterval: 800},
	}
}

// Load reads configuration from configPath (empty means defaults only)
// layered under RUDEL_* environment variables, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RUDEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		if err := v.Unmarshal(cfg, viper.DecodeHook(byteSizeDecodeHook())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as
// needed. Used by the host build's init command to seed a config file
// worth editing.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration's structural constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

// byteSizeDecodeHook converts strings and integers to
// bytesize.ByteSize, so config files can say "4Ki" for block_size.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return bytesize.ParseByteSize(value)
		case int:
			return bytesize.ByteSize(value), nil
		case int64:
			return bytesize.ByteSize(value), nil
		case uint64:
			return bytesize.ByteSize(value), nil
		case float64:
			return bytesize.ByteSize(value), nil
		default:
			return data, nil
		}
	}
}
