//go:build !linux && !baremetal

package ble

import "log/slog"

// tinygo-org/bluetooth has no GATT server on this platform.
func newTinyGoAdapter(*slog.Logger) Adapter {
	return unsupportedAdapter{backend: BackendTinyGo}
}
