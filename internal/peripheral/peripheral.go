// Package peripheral implements the soil sensor's BLE peripheral: it
// advertises one service, tracks a single client connection, and pushes the
// current moisture reading to that client on a fixed interval.
package peripheral

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chaz8081/soil-peripheral/internal/ble"
	"github.com/chaz8081/soil-peripheral/internal/moisture"
)

// InitialValue is the characteristic value before the first notification.
const InitialValue = "0"

// Options configures the peripheral.
type Options struct {
	DeviceName         string
	ServiceUUID        string
	CharacteristicUUID string
	Writable           bool          // accept and log client writes
	Interval           time.Duration // time between the end of one tick and the next
	RestartAdvertising bool          // resume advertising after a disconnect
	Logger             *slog.Logger
}

// DefaultOptions returns the ESP32_Soil identity with a 2 second interval.
func DefaultOptions() Options {
	return Options{
		DeviceName:         ble.DefaultDeviceName,
		ServiceUUID:        ble.DefaultServiceUUID,
		CharacteristicUUID: ble.DefaultCharacteristicUUID,
		Writable:           true,
		Interval:           2 * time.Second,
		RestartAdvertising: true,
	}
}

// Peripheral owns the connection flag, the characteristic and the moisture
// source. Radio callbacks and the tick loop run on different goroutines.
type Peripheral struct {
	adapter ble.Adapter
	opts    Options
	log     *slog.Logger

	mu sync.Mutex
	// enabled and char record finished Initialize steps so a retry after a
	// failed advertise does not enable or register the service again.
	enabled   bool
	char      ble.Characteristic
	ready     bool
	connected bool
	value     []byte
	source    moisture.Source
}

// New creates a peripheral. Zero fields in opts fall back to DefaultOptions,
// except the booleans which are taken as given.
func New(adapter ble.Adapter, source moisture.Source, opts Options) *Peripheral {
	def := DefaultOptions()
	if opts.DeviceName == "" {
		opts.DeviceName = def.DeviceName
	}
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = def.ServiceUUID
	}
	if opts.CharacteristicUUID == "" {
		opts.CharacteristicUUID = def.CharacteristicUUID
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if source == nil {
		source = &moisture.Sawtooth{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Peripheral{
		adapter: adapter,
		opts:    opts,
		log:     logger,
		source:  source,
	}
}

// Initialize enables the radio, registers the service and starts
// advertising. It must succeed once before Tick or Run. After a failure it
// may be called again; steps that already succeeded are not repeated.
func (p *Peripheral) Initialize() error {
	p.mu.Lock()
	ready, enabled, char := p.ready, p.enabled, p.char
	p.mu.Unlock()
	if ready {
		return ErrAlreadyInitialized
	}

	if !enabled {
		if err := p.adapter.Enable(); err != nil {
			return &InitError{Step: "enable", Err: err}
		}
		p.adapter.SetConnectHandler(func(connected bool) {
			if connected {
				p.Handle(Event{Kind: EventConnect})
			} else {
				p.Handle(Event{Kind: EventDisconnect})
			}
		})
		p.mu.Lock()
		p.enabled = true
		p.mu.Unlock()
	}

	if char == nil {
		cfg := ble.ServiceConfig{
			ServiceUUID:        p.opts.ServiceUUID,
			CharacteristicUUID: p.opts.CharacteristicUUID,
			Writable:           p.opts.Writable,
			InitialValue:       []byte(InitialValue),
		}
		if p.opts.Writable {
			cfg.OnWrite = func(data []byte) {
				p.Handle(Event{Kind: EventWrite, Data: data})
			}
		}
		var err error
		char, err = p.adapter.AddService(cfg)
		if err != nil {
			return &InitError{Step: "add service", Err: err}
		}
		p.mu.Lock()
		p.char = char
		p.value = []byte(InitialValue)
		p.mu.Unlock()
	}

	if err := p.adapter.StartAdvertising(p.opts.DeviceName, p.opts.ServiceUUID); err != nil {
		return &InitError{Step: "advertise", Err: err}
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	p.log.Info("[BLE] soil sensor ready",
		"name", p.opts.DeviceName,
		"service", p.opts.ServiceUUID,
		"characteristic", p.opts.CharacteristicUUID,
		"writable", p.opts.Writable,
	)
	return nil
}

// Handle dispatches a radio event.
func (p *Peripheral) Handle(ev Event) {
	switch ev.Kind {
	case EventConnect:
		p.OnConnect()
	case EventDisconnect:
		p.OnDisconnect()
	case EventWrite:
		if !p.opts.Writable {
			p.log.Debug("[BLE] write ignored, characteristic is read-only")
			return
		}
		p.OnWrite(ev.Data)
	default:
		p.log.Warn("[BLE] unknown event", "kind", ev.Kind)
	}
}

// OnConnect marks the client as connected.
func (p *Peripheral) OnConnect() {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	p.log.Info("[BLE] client connected")
}

// OnDisconnect marks the client as gone and, if configured, resumes
// advertising so the next client can find the sensor.
func (p *Peripheral) OnDisconnect() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.log.Info("[BLE] client disconnected")

	if !p.opts.RestartAdvertising {
		return
	}
	if err := p.adapter.StartAdvertising(p.opts.DeviceName, p.opts.ServiceUUID); err != nil {
		p.log.Warn("[BLE] failed to restart advertising", "error", err)
		return
	}
	p.log.Debug("[BLE] advertising restarted")
}

// OnWrite records and logs a value written by the client. Empty writes are
// ignored.
func (p *Peripheral) OnWrite(data []byte) {
	if len(data) == 0 {
		return
	}

	p.mu.Lock()
	p.value = bytes.Clone(data)
	p.mu.Unlock()

	if !utf8.Valid(data) {
		p.log.Warn("[BLE] received non-text value from client", "hex", hex.EncodeToString(data))
		return
	}
	p.log.Info("[BLE] received value from client", "value", string(data))
}

// Tick publishes the current reading if a client is connected, then
// advances the moisture source. Publishing is fire-and-forget: stack
// errors are logged, not returned.
func (p *Peripheral) Tick() error {
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return ErrNotInitialized
	}
	char := p.char
	reading := p.source.Current()
	connected := p.connected
	p.mu.Unlock()

	p.log.Info("[SOIL] sending moisture", "value", reading, "connected", connected)

	if connected {
		value := []byte(strconv.Itoa(reading))
		if err := char.SetValue(value); err != nil {
			p.log.Debug("[BLE] set value failed", "error", err)
		} else {
			p.mu.Lock()
			p.value = value
			p.mu.Unlock()
			if err := char.Notify(); err != nil {
				p.log.Debug("[BLE] notify failed", "error", err)
			}
		}
	}

	p.mu.Lock()
	p.source.Advance()
	p.mu.Unlock()
	return nil
}

// Run ticks until ctx is cancelled. Each wait starts after the previous
// tick finishes, so slow ticks push later ones back.
func (p *Peripheral) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Tick(); err != nil {
			return err
		}

		timer := time.NewTimer(p.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Connected reports whether a client is connected.
func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Value returns a copy of the characteristic value last set or written.
func (p *Peripheral) Value() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.value)
}

// Moisture returns the reading the next tick will publish.
func (p *Peripheral) Moisture() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source.Current()
}
