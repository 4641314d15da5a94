package ble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// GoBLEAdapter drives a Linux HCI controller directly through go-ble/ble,
// bypassing BlueZ. It needs CAP_NET_ADMIN and a powered-down hciN device.
//
// go-ble has no server-side connection callback, so the client's ATT
// connection stands in for it: the first request seen on a new blelib.Conn
// counts as connect, and that Conn's Disconnected channel closing counts as
// disconnect.
type GoBLEAdapter struct {
	newDevice func() (blelib.Device, error)
	log       *slog.Logger
	// settle is how long StartAdvertising waits for the controller to
	// reject the advertising parameters before reporting success.
	settle time.Duration

	mu        sync.Mutex
	device    blelib.Device
	onConnect func(connected bool)
	conn      blelib.Conn
	char      *goBLECharacteristic
	cancelAdv context.CancelFunc
	advCtx    context.Context
}

// defaultAdvertiseSettle covers the HCI set-data and advertise-enable
// round trips on a local controller.
const defaultAdvertiseSettle = 250 * time.Millisecond

func newGoBLEAdapter(logger *slog.Logger) Adapter {
	return NewGoBLEAdapter(logger)
}

// NewGoBLEAdapter creates an adapter on the default HCI device.
func NewGoBLEAdapter(logger *slog.Logger) *GoBLEAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoBLEAdapter{
		newDevice: func() (blelib.Device, error) {
			return linux.NewDevice()
		},
		log:    logger,
		settle: defaultAdvertiseSettle,
	}
}

func (a *GoBLEAdapter) Enable() error {
	d, err := a.newDevice()
	if err != nil {
		return fmt.Errorf("ble: open HCI device: %w", err)
	}
	a.mu.Lock()
	a.device = d
	a.mu.Unlock()
	return nil
}

func (a *GoBLEAdapter) SetConnectHandler(handler func(connected bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onConnect = handler
}

func (a *GoBLEAdapter) AddService(cfg ServiceConfig) (Characteristic, error) {
	svcUUID, err := blelib.Parse(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	charUUID, err := blelib.Parse(cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}

	char := &goBLECharacteristic{value: bytes.Clone(cfg.InitialValue)}
	svc := blelib.NewService(svcUUID)
	c := svc.NewCharacteristic(charUUID)
	c.HandleRead(blelib.ReadHandlerFunc(a.handleRead))
	c.HandleNotify(blelib.NotifyHandlerFunc(a.handleNotify))
	if cfg.Writable {
		c.HandleWrite(blelib.WriteHandlerFunc(func(req blelib.Request, rsp blelib.ResponseWriter) {
			a.handleWrite(req, cfg.OnWrite)
		}))
	}

	a.mu.Lock()
	d := a.device
	if d != nil {
		a.char = char
	}
	a.mu.Unlock()
	if d == nil {
		return nil, errors.New("ble: adapter not enabled")
	}
	if err := d.AddService(svc); err != nil {
		return nil, fmt.Errorf("ble: add service: %w", err)
	}
	return char, nil
}

func (a *GoBLEAdapter) StartAdvertising(name, serviceUUID string) error {
	uuid, err := blelib.Parse(serviceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	a.mu.Lock()
	if a.device == nil {
		a.mu.Unlock()
		return errors.New("ble: adapter not enabled")
	}
	if a.cancelAdv != nil {
		a.cancelAdv()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelAdv = cancel
	a.advCtx = ctx
	d := a.device
	settle := a.settle
	a.mu.Unlock()

	// AdvertiseNameAndServices blocks until ctx is cancelled, so a failure
	// to start shows up as an early return.
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.AdvertiseNameAndServices(ctx, name, uuid)
	}()

	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			// Superseded by a newer StartAdvertising or StopAdvertising.
			return nil
		}
		a.clearAdvertising(ctx, cancel)
		if err == nil {
			err = errors.New("advertising ended immediately")
		}
		return fmt.Errorf("ble: start advertising: %w", err)
	case <-timer.C:
	}

	go func() {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("[BLE] advertising stopped", "error", err)
		}
	}()
	return nil
}

// clearAdvertising forgets cancel unless a newer advertisement replaced it.
func (a *GoBLEAdapter) clearAdvertising(ctx context.Context, cancel context.CancelFunc) {
	cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.advCtx == ctx {
		a.cancelAdv = nil
		a.advCtx = nil
	}
}

func (a *GoBLEAdapter) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelAdv != nil {
		a.cancelAdv()
		a.cancelAdv = nil
		a.advCtx = nil
	}
	return nil
}

// trackConn reports a connect the first time conn is seen and a disconnect
// once it drops.
func (a *GoBLEAdapter) trackConn(conn blelib.Conn) {
	if conn == nil {
		return
	}
	a.mu.Lock()
	if a.conn == conn {
		a.mu.Unlock()
		return
	}
	a.conn = conn
	handler := a.onConnect
	a.mu.Unlock()

	if handler != nil {
		handler(true)
	}

	go func() {
		<-conn.Disconnected()
		a.mu.Lock()
		if a.conn != conn {
			a.mu.Unlock()
			return
		}
		a.conn = nil
		if a.char != nil {
			a.char.setNotifier(nil)
		}
		handler := a.onConnect
		a.mu.Unlock()
		if handler != nil {
			handler(false)
		}
	}()
}

func (a *GoBLEAdapter) characteristic() *goBLECharacteristic {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.char
}

func (a *GoBLEAdapter) handleRead(req blelib.Request, rsp blelib.ResponseWriter) {
	a.trackConn(req.Conn())
	char := a.characteristic()
	if char == nil {
		return
	}
	rsp.Write(char.Value())
}

func (a *GoBLEAdapter) handleWrite(req blelib.Request, onWrite func([]byte)) {
	a.trackConn(req.Conn())
	if onWrite == nil {
		return
	}
	onWrite(bytes.Clone(req.Data()))
}

// handleNotify runs for the lifetime of a subscription.
func (a *GoBLEAdapter) handleNotify(req blelib.Request, n blelib.Notifier) {
	a.trackConn(req.Conn())
	char := a.characteristic()
	if char == nil {
		return
	}
	char.setNotifier(n)
	<-n.Context().Done()
	char.clearNotifier(n)
}

// Compile-time check that GoBLEAdapter implements Adapter.
var _ Adapter = (*GoBLEAdapter)(nil)

type goBLECharacteristic struct {
	mu       sync.Mutex
	value    []byte
	notifier blelib.Notifier
}

func (c *goBLECharacteristic) Value() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.value)
}

func (c *goBLECharacteristic) SetValue(value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = bytes.Clone(value)
	return nil
}

func (c *goBLECharacteristic) Notify() error {
	c.mu.Lock()
	n := c.notifier
	value := c.value
	c.mu.Unlock()
	if n == nil {
		return ErrNoSubscriber
	}
	if _, err := n.Write(value); err != nil {
		return fmt.Errorf("ble: notify: %w", err)
	}
	return nil
}

func (c *goBLECharacteristic) setNotifier(n blelib.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// clearNotifier drops n unless a newer subscription replaced it.
func (c *goBLECharacteristic) clearNotifier(n blelib.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifier == n {
		c.notifier = nil
	}
}
