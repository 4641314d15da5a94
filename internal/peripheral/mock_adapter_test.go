package peripheral

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/chaz8081/soil-peripheral/internal/ble"
)

// mockCharacteristic records value updates and notifications in order.
type mockCharacteristic struct {
	mu        sync.Mutex
	values    [][]byte
	notified  [][]byte
	current   []byte
	setErr    error
	notifyErr error
}

func (c *mockCharacteristic) SetValue(value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.current = bytes.Clone(value)
	c.values = append(c.values, bytes.Clone(value))
	return nil
}

func (c *mockCharacteristic) Notify() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifyErr != nil {
		return c.notifyErr
	}
	c.notified = append(c.notified, bytes.Clone(c.current))
	return nil
}

// notifications returns the notified values as strings.
func (c *mockCharacteristic) notifications() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.notified))
	for i, v := range c.notified {
		out[i] = string(v)
	}
	return out
}

func (c *mockCharacteristic) valueUpdates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// mockAdapter simulates the BLE stack.
type mockAdapter struct {
	mu sync.Mutex

	enableErr    error
	addErr       error
	advertiseErr error

	enabled     bool
	enableCalls int
	addCalls    int
	cfg         ble.ServiceConfig
	char        *mockCharacteristic
	connectCb   func(bool)
	advertising int // StartAdvertising calls
	advName     string
	advUUID     string
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{char: &mockCharacteristic{}}
}

func (a *mockAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enableCalls++
	if a.enableErr != nil {
		return a.enableErr
	}
	a.enabled = true
	return nil
}

func (a *mockAdapter) SetConnectHandler(cb func(bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectCb = cb
}

func (a *mockAdapter) AddService(cfg ble.ServiceConfig) (ble.Characteristic, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addCalls++
	if a.addErr != nil {
		return nil, a.addErr
	}
	a.cfg = cfg
	a.char.current = bytes.Clone(cfg.InitialValue)
	return a.char, nil
}

func (a *mockAdapter) StartAdvertising(name, serviceUUID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.advertiseErr != nil {
		return a.advertiseErr
	}
	a.advertising++
	a.advName = name
	a.advUUID = serviceUUID
	return nil
}

func (a *mockAdapter) StopAdvertising() error { return nil }

// SimulateConnect fires the registered connect handler.
func (a *mockAdapter) SimulateConnect(connected bool) {
	a.mu.Lock()
	cb := a.connectCb
	a.mu.Unlock()
	if cb != nil {
		cb(connected)
	}
}

// SimulateWrite delivers a client write through the service callback.
func (a *mockAdapter) SimulateWrite(data []byte) {
	a.mu.Lock()
	onWrite := a.cfg.OnWrite
	a.mu.Unlock()
	if onWrite != nil {
		onWrite(data)
	}
}

func (a *mockAdapter) advertiseCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advertising
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&syncBuffer{}, nil))
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ ble.Adapter = (*mockAdapter)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ ble.Characteristic = (*mockCharacteristic)(nil)
}
