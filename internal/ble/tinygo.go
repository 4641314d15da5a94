//go:build linux || baremetal

package ble

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth in the peripheral role. On Linux
// it talks to BlueZ over D-Bus; on microcontrollers it drives the on-chip
// stack (SoftDevice, HCI, NINA firmware).
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter
	log     *slog.Logger
	// newAdvertisement returns the advertisement to configure, normally the
	// adapter's default one.
	newAdvertisement func() advertisement

	// mu protects adv and configured.
	mu         sync.Mutex
	adv        advertisement
	configured bool
}

// advertisement is the part of *bluetooth.Advertisement the adapter uses.
type advertisement interface {
	Configure(options bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

func newTinyGoAdapter(logger *slog.Logger) Adapter {
	return NewTinyGoAdapter(logger)
}

// NewTinyGoAdapter creates a BLE adapter using the default tinygo adapter.
func NewTinyGoAdapter(logger *slog.Logger) *TinyGoAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &TinyGoAdapter{adapter: bluetooth.DefaultAdapter, log: logger}
	a.newAdvertisement = func() advertisement {
		return a.adapter.DefaultAdvertisement()
	}
	return a
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	return nil
}

func (a *TinyGoAdapter) SetConnectHandler(handler func(connected bool)) {
	a.adapter.SetConnectHandler(func(_ bluetooth.Device, connected bool) {
		handler(connected)
	})
}

func (a *TinyGoAdapter) AddService(cfg ServiceConfig) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}

	char := &tinyGoCharacteristic{value: bytes.Clone(cfg.InitialValue)}
	flags := bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission
	var onWrite func(bluetooth.Connection, int, []byte)
	if cfg.Writable {
		flags |= bluetooth.CharacteristicWritePermission
		onWrite = func(_ bluetooth.Connection, offset int, value []byte) {
			// Long writes are not reassembled; only the first segment counts.
			if offset != 0 || cfg.OnWrite == nil {
				return
			}
			cfg.OnWrite(bytes.Clone(value))
		}
	}

	err = a.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle:     &char.handle,
				UUID:       charUUID,
				Value:      char.value,
				Flags:      flags,
				WriteEvent: onWrite,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ble: add service: %w", err)
	}
	return char, nil
}

func (a *TinyGoAdapter) StartAdvertising(name, serviceUUID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.configured {
		uuid, err := bluetooth.ParseUUID(serviceUUID)
		if err != nil {
			return fmt.Errorf("ble: parse service UUID: %w", err)
		}
		adv := a.newAdvertisement()
		if err := adv.Configure(bluetooth.AdvertisementOptions{
			LocalName:    name,
			ServiceUUIDs: []bluetooth.UUID{uuid},
		}); err != nil {
			return fmt.Errorf("ble: configure advertisement: %w", err)
		}
		a.adv = adv
		a.configured = true
	} else {
		// The stack may still consider the old advertisement active. A
		// "not started" error is expected here after a disconnect.
		if err := a.adv.Stop(); err != nil {
			a.log.Debug("[BLE] stop before restart", "error", err)
		}
	}

	if err := a.adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	return nil
}

func (a *TinyGoAdapter) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adv == nil {
		return nil
	}
	if err := a.adv.Stop(); err != nil {
		return fmt.Errorf("ble: stop advertisement: %w", err)
	}
	return nil
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoCharacteristic struct {
	handle bluetooth.Characteristic

	mu    sync.Mutex
	value []byte
}

func (c *tinyGoCharacteristic) SetValue(value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = bytes.Clone(value)
	return nil
}

// Notify writes the staged value; tinygo's Write both stores the value and
// notifies subscribers.
func (c *tinyGoCharacteristic) Notify() error {
	c.mu.Lock()
	value := c.value
	c.mu.Unlock()
	if _, err := c.handle.Write(value); err != nil {
		return fmt.Errorf("ble: notify: %w", err)
	}
	return nil
}
