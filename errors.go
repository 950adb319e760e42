package pi2cslave

import (
	"errors"

	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/bsc"
	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/gpio"
)

// Error represents a setup operation error with structured information.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common sentinel errors.
var (
	// ErrClosed is returned for any operation on a closed Slave.
	ErrClosed = errors.New("slave closed")

	// ErrNotReady is returned when a transfer operation runs before
	// Enable or after Disable.
	ErrNotReady = bsc.ErrNotEnabled

	// ErrInvalidPin is returned for pin numbers outside the usable
	// GPIO range.
	ErrInvalidPin = gpio.ErrInvalidPin

	// ErrInvalidState is returned for unrecognized pin output states.
	ErrInvalidState = gpio.ErrInvalidState
)
