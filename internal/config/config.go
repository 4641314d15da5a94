package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// appName names the config directory and the header of the default file.
const appName = "soil-peripheral"

// maxDeviceNameLen keeps the local name inside a legacy 31-byte advertising
// payload (flags take 3 bytes, the name header 2).
const maxDeviceNameLen = 26

// Config holds all application configuration.
type Config struct {
	BLE      BLEConfig    `yaml:"ble"`
	Sensor   SensorConfig `yaml:"sensor"`
	LogLevel string       `yaml:"log_level"`
}

// BLEConfig holds the peripheral identity and radio settings.
type BLEConfig struct {
	Backend            string `yaml:"backend"` // "tinygo" or "goble"
	DeviceName         string `yaml:"device_name"`
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`
	Writable           bool   `yaml:"writable"`
	RestartAdvertising bool   `yaml:"restart_advertising"`
}

// SensorConfig holds moisture reading settings.
type SensorConfig struct {
	Mode     string        `yaml:"mode"` // "sawtooth" or "random"
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		BLE: BLEConfig{
			Backend:            "tinygo",
			DeviceName:         "ESP32_Soil",
			ServiceUUID:        "12345678-1234-5678-1234-56789abcdef0",
			CharacteristicUUID: "abcd1234-ab12-cd34-ef56-abcdef123456",
			Writable:           true,
			RestartAdvertising: true,
		},
		Sensor: SensorConfig{
			Mode:     "sawtooth",
			Interval: 2 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.BLE.Backend {
	case "tinygo", "goble":
	default:
		return fmt.Errorf("ble.backend must be \"tinygo\" or \"goble\", got %q", c.BLE.Backend)
	}

	if c.BLE.DeviceName == "" {
		return fmt.Errorf("ble.device_name must not be empty")
	}
	if len(c.BLE.DeviceName) > maxDeviceNameLen {
		return fmt.Errorf("ble.device_name must be at most %d bytes, got %d", maxDeviceNameLen, len(c.BLE.DeviceName))
	}

	if err := validateUUID("ble.service_uuid", c.BLE.ServiceUUID); err != nil {
		return err
	}
	if err := validateUUID("ble.characteristic_uuid", c.BLE.CharacteristicUUID); err != nil {
		return err
	}
	if c.BLE.ServiceUUID == c.BLE.CharacteristicUUID {
		return fmt.Errorf("ble.characteristic_uuid must differ from ble.service_uuid")
	}

	switch c.Sensor.Mode {
	case "sawtooth", "random":
	default:
		return fmt.Errorf("sensor.mode must be \"sawtooth\" or \"random\", got %q", c.Sensor.Mode)
	}

	if c.Sensor.Interval <= 0 {
		return fmt.Errorf("sensor.interval must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// validateUUID requires the canonical dashed 128-bit form, which is what
// both BLE backends parse.
func validateUUID(field, s string) error {
	if len(s) != 36 {
		return fmt.Errorf("%s must be a 36-character UUID, got %q", field, s)
	}
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// ParseLogLevel maps a config log level to slog.Level. Unknown values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# soil-peripheral configuration
#
# ble.backend:          tinygo (BlueZ / microcontroller) or goble (raw HCI, Linux)
# ble.writable:         accept and log writes from the connected client
# ble.restart_advertising: advertise again after the client disconnects
# sensor.mode:          sawtooth (0..99 counter) or random
# sensor.interval:      time between notifications, e.g. 2s
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader+"\n"), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
