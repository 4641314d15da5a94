package peripheral

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization matches every *InitError via errors.Is.
	ErrInitialization = errors.New("peripheral: initialization failed")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("peripheral: already initialized")
	// ErrNotInitialized is returned by Tick and Run before Initialize.
	ErrNotInitialized = errors.New("peripheral: not initialized")
)

// InitError reports which step of Initialize failed.
type InitError struct {
	Step string // "enable", "add service", "advertise"
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("peripheral: %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInitialization) report true.
func (e *InitError) Is(target error) bool { return target == ErrInitialization }
