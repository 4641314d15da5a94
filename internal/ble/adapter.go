// Package ble provides the radio side of the soil peripheral: a small
// Adapter abstraction over the GATT server of a BLE stack, with backends
// for tinygo-org/bluetooth and go-ble/ble.
package ble

import (
	"errors"
	"fmt"
	"log/slog"
)

// Default soil sensor identity.
const (
	DefaultDeviceName         = "ESP32_Soil"
	DefaultServiceUUID        = "12345678-1234-5678-1234-56789abcdef0"
	DefaultCharacteristicUUID = "abcd1234-ab12-cd34-ef56-abcdef123456"
)

// Backend names accepted by NewAdapter.
const (
	BackendTinyGo = "tinygo"
	BackendGoBLE  = "goble"
)

// ErrUnsupported is returned by Enable when the selected backend has no
// peripheral support on the current platform.
var ErrUnsupported = errors.New("ble: peripheral role not supported on this platform")

// ErrNoSubscriber is returned by Notify when no client has enabled
// notifications.
var ErrNoSubscriber = errors.New("ble: no subscribed client")

// ServiceConfig describes the single service and characteristic exposed by
// the peripheral.
type ServiceConfig struct {
	ServiceUUID        string
	CharacteristicUUID string
	// Writable adds the Write property and routes client writes to OnWrite.
	Writable     bool
	InitialValue []byte
	OnWrite      func(data []byte)
}

// Characteristic is the local (server side) GATT characteristic.
type Characteristic interface {
	// SetValue replaces the value served to client reads.
	SetValue(value []byte) error
	// Notify pushes the current value to the subscribed client.
	Notify() error
}

// Adapter abstracts the BLE stack acting as a GATT server.
type Adapter interface {
	// Enable powers on the BLE stack.
	Enable() error
	// SetConnectHandler registers the callback for connection changes.
	// Must be called before StartAdvertising.
	SetConnectHandler(handler func(connected bool))
	// AddService registers the service and returns its characteristic.
	AddService(cfg ServiceConfig) (Characteristic, error)
	// StartAdvertising broadcasts name and serviceUUID. Calling it again
	// after a stop (or a connection) resumes advertising.
	StartAdvertising(name, serviceUUID string) error
	// StopAdvertising stops the broadcast.
	StopAdvertising() error
}

// NewAdapter returns the adapter for the named backend. Stack-level
// warnings go to logger, or slog.Default when logger is nil.
func NewAdapter(backend string, logger *slog.Logger) (Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend {
	case "", BackendTinyGo:
		return newTinyGoAdapter(logger), nil
	case BackendGoBLE:
		return newGoBLEAdapter(logger), nil
	default:
		return nil, fmt.Errorf("ble: unknown backend %q", backend)
	}
}

// unsupportedAdapter fails at Enable so the error surfaces during
// peripheral initialization instead of at build time.
type unsupportedAdapter struct {
	backend string
}

func (a unsupportedAdapter) Enable() error {
	return fmt.Errorf("%w (backend %s)", ErrUnsupported, a.backend)
}

func (a unsupportedAdapter) SetConnectHandler(func(bool)) {}

func (a unsupportedAdapter) AddService(ServiceConfig) (Characteristic, error) {
	return nil, ErrUnsupported
}

func (a unsupportedAdapter) StartAdvertising(string, string) error { return ErrUnsupported }

func (a unsupportedAdapter) StopAdvertising() error { return ErrUnsupported }

var _ Adapter = unsupportedAdapter{}
