package ble

import (
	"errors"
	"testing"
)

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{BackendTinyGo, false},
		{BackendGoBLE, false},
		{"bluez-dbus", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			a, err := NewAdapter(tt.backend, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAdapter(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if !tt.wantErr && a == nil {
				t.Errorf("NewAdapter(%q) returned nil adapter", tt.backend)
			}
		})
	}
}

func TestUnsupportedAdapterFailsAtEnable(t *testing.T) {
	a := unsupportedAdapter{backend: "test"}
	if err := a.Enable(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Enable() error = %v, want ErrUnsupported", err)
	}
	if _, err := a.AddService(ServiceConfig{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("AddService() error = %v, want ErrUnsupported", err)
	}
	if err := a.StartAdvertising(DefaultDeviceName, DefaultServiceUUID); !errors.Is(err, ErrUnsupported) {
		t.Errorf("StartAdvertising() error = %v, want ErrUnsupported", err)
	}
}
