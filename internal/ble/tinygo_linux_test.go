package ble

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"tinygo.org/x/bluetooth"
)

// mockAdvertisement records calls the way the BlueZ advertisement would
// see them.
type mockAdvertisement struct {
	opts     bluetooth.AdvertisementOptions
	starts   int
	stops    int
	stopErr  error
	startErr error
}

func (m *mockAdvertisement) Configure(opts bluetooth.AdvertisementOptions) error {
	m.opts = opts
	return nil
}

func (m *mockAdvertisement) Start() error {
	m.starts++
	return m.startErr
}

func (m *mockAdvertisement) Stop() error {
	m.stops++
	return m.stopErr
}

// lockedBuffer collects log output.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestTinyGoAdapter(adv *mockAdvertisement, out *lockedBuffer) *TinyGoAdapter {
	return &TinyGoAdapter{
		log:              slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})),
		newAdvertisement: func() advertisement { return adv },
	}
}

func TestTinyGoStartAdvertisingConfiguresOnce(t *testing.T) {
	adv := &mockAdvertisement{}
	a := newTestTinyGoAdapter(adv, &lockedBuffer{})

	for i := 0; i < 3; i++ {
		if err := a.StartAdvertising(DefaultDeviceName, DefaultServiceUUID); err != nil {
			t.Fatalf("StartAdvertising() #%d error = %v", i+1, err)
		}
	}
	if adv.opts.LocalName != DefaultDeviceName {
		t.Errorf("LocalName = %q, want %q", adv.opts.LocalName, DefaultDeviceName)
	}
	if len(adv.opts.ServiceUUIDs) != 1 {
		t.Errorf("ServiceUUIDs = %v, want one UUID", adv.opts.ServiceUUIDs)
	}
	if adv.starts != 3 {
		t.Errorf("Start calls = %d, want 3", adv.starts)
	}
	if adv.stops != 2 {
		t.Errorf("Stop calls = %d, want 2 (one before each restart)", adv.stops)
	}
}

func TestTinyGoRestartLogsStopError(t *testing.T) {
	adv := &mockAdvertisement{}
	out := &lockedBuffer{}
	a := newTestTinyGoAdapter(adv, out)

	if err := a.StartAdvertising(DefaultDeviceName, DefaultServiceUUID); err != nil {
		t.Fatalf("StartAdvertising() error = %v", err)
	}
	adv.stopErr = errors.New("org.bluez.Error.Failed")
	if err := a.StartAdvertising(DefaultDeviceName, DefaultServiceUUID); err != nil {
		t.Fatalf("StartAdvertising() restart error = %v", err)
	}

	logs := out.String()
	if !strings.Contains(logs, "[BLE] stop before restart") || !strings.Contains(logs, "org.bluez.Error.Failed") {
		t.Errorf("log output = %q, want the stop error at debug", logs)
	}
}

func TestTinyGoStartAdvertisingError(t *testing.T) {
	want := errors.New("not permitted")
	adv := &mockAdvertisement{startErr: want}
	a := newTestTinyGoAdapter(adv, &lockedBuffer{})

	if err := a.StartAdvertising(DefaultDeviceName, DefaultServiceUUID); !errors.Is(err, want) {
		t.Errorf("StartAdvertising() error = %v, want %v", err, want)
	}
}

func TestTinyGoStartAdvertisingBadUUID(t *testing.T) {
	adv := &mockAdvertisement{}
	a := newTestTinyGoAdapter(adv, &lockedBuffer{})

	if err := a.StartAdvertising(DefaultDeviceName, "not-a-uuid"); err == nil {
		t.Error("StartAdvertising() should reject a malformed UUID")
	}
	if adv.starts != 0 {
		t.Errorf("Start calls = %d, want 0", adv.starts)
	}
}
