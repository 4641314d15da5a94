//go:build !linux

package ble

import "log/slog"

// go-ble/ble only implements the GATT server on Linux HCI sockets.
func newGoBLEAdapter(*slog.Logger) Adapter {
	return unsupportedAdapter{backend: BackendGoBLE}
}
