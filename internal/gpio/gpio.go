// Package gpio configures BCM283x GPIO pins through a mapped register
// window: alternate-function selection and direct output driving.
package gpio

import (
	"errors"
	"fmt"

	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/mmio"
)

// Window geometry, relative to the SoC I/O base.
const (
	WindowOffset = 0x200000
	WindowLen    = 0xF4
)

const (
	// PinCount is the number of user-accessible GPIOs.
	PinCount = 28

	// Word offsets of the output set/clear registers for pins 0-31.
	setReg   = 7 * 4
	clearReg = 10 * 4

	funcBits   = 3
	funcMask   = 0x7
	funcPerReg = 10
)

// Func is a pin's 3-bit function-select code.
type Func uint32

const (
	FuncIn   Func = 0x0
	FuncOut  Func = 0x1
	FuncAlt0 Func = 0x4
	FuncAlt1 Func = 0x5
	FuncAlt2 Func = 0x6
	FuncAlt3 Func = 0x7
	FuncAlt4 Func = 0x3
	FuncAlt5 Func = 0x2
)

// State is the requested output state of a pin. Float approximates
// open-drain by turning the pin back into an input; the BCM283x has no
// true open-drain mode.
type State int

const (
	Float State = iota
	Low
	High
)

func (s State) String() string {
	switch s {
	case Float:
		return "float"
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "INVALID"
	}
}

// ParseState converts a config/flag string to a State.
func ParseState(s string) (State, error) {
	switch s {
	case "float":
		return Float, nil
	case "low":
		return Low, nil
	case "high":
		return High, nil
	default:
		return 0, fmt.Errorf("gpio: %w: %q", ErrInvalidState, s)
	}
}

var (
	// ErrInvalidPin is returned for pin numbers outside [0, PinCount).
	ErrInvalidPin = errors.New("invalid gpio pin")
	// ErrInvalidState is returned for unrecognized output states.
	ErrInvalidState = errors.New("invalid gpio state")
)

// Mux drives the function-select and set/clear registers of one GPIO
// window. The read-modify-write in SetFunc is not atomic with respect to
// other processes touching the same register; callers sharing a register
// across goroutines must serialize externally.
type Mux struct {
	regs mmio.Region32
}

// NewMux returns a Mux over an already-mapped GPIO register window.
func NewMux(regs mmio.Region32) *Mux {
	return &Mux{regs: regs}
}

// SetFunc selects the function of a single pin. Ten 3-bit fields pack
// into each 32-bit function-select register.
func (m *Mux) SetFunc(pin uint, fn Func) error {
	if pin >= PinCount {
		return fmt.Errorf("gpio: %w: %d", ErrInvalidPin, pin)
	}
	reg := uintptr(pin/funcPerReg) * 4
	shift := (pin % funcPerReg) * funcBits

	v := m.regs.Read32(reg)
	v &^= funcMask << shift
	v |= uint32(fn) << shift
	m.regs.Write32(reg, v)
	return nil
}

// SetOutput drives a pin high, low, or floating. The output level is
// latched through the set/clear register before the pin is switched to
// the output function, so the pin never drives a stale level.
func (m *Mux) SetOutput(pin uint, state State) error {
	if pin >= PinCount {
		return fmt.Errorf("gpio: %w: %d", ErrInvalidPin, pin)
	}
	switch state {
	case Float:
		return m.SetFunc(pin, FuncIn)
	case Low:
		m.regs.Write32(clearReg, 1<<pin)
		return m.SetFunc(pin, FuncOut)
	case High:
		m.regs.Write32(setReg, 1<<pin)
		return m.SetFunc(pin, FuncOut)
	default:
		return fmt.Errorf("gpio: %w: %d", ErrInvalidState, int(state))
	}
}
