// Package pi2cslave drives the BCM283x BSC peripheral in I2C slave
// mode from user space, letting a process on a Raspberry Pi act as an
// I2C slave device: it receives bytes written by the bus master and
// supplies bytes from a caller callback when the master reads.
//
// The driver maps the GPIO and BSC register windows through /dev/mem
// and polls the hardware FIFOs directly; there is no interrupt or DMA
// support, and master mode is out of scope. Open and Close bracket the
// register mappings, Enable and Disable bracket slave operation, and
// Read and Write are the polling transfer operations, meant to run on a
// dedicated goroutine and bounded only by context cancellation.
package pi2cslave

import (
	"context"
	"log/slog"

	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/bsc"
	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/gpio"
	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/mmio"
)

// DefaultIOBase is the BCM2836/BCM2837 SoC I/O base physical address.
const DefaultIOBase uintptr = 0x3F000000

// TxFunc supplies one byte for the given transfer address, or reports
// that it has no more data for this request. It runs inside the FIFO
// fill loop and must not block for long.
type TxFunc = bsc.TxFunc

// PinState is the requested output state of a GPIO pin.
type PinState = gpio.State

// Pin output states. PinFloat approximates open-drain by turning the
// pin back into an input.
const (
	PinFloat = gpio.Float
	PinLow   = gpio.Low
	PinHigh  = gpio.High
)

// Slave is a handle to the mapped peripheral. A Slave is not safe for
// concurrent use: all transfer operations share the same hardware
// register state, so only one goroutine may drive them at a time.
type Slave struct {
	log *slog.Logger

	dev     *mmio.Device
	gpioWin *mmio.Window
	bscWin  *mmio.Window

	mux    *gpio.Mux
	engine *bsc.Engine

	enabled bool
	closed  bool
}

// Open maps the GPIO and BSC register windows. The returned Slave is
// ready for Enable and SetOutput; Close releases the mappings.
// Requires access to the physical-memory device, typically root.
func Open(opts ...Option) (*Slave, error) {
	ioBase := DefaultIOBase
	device := mmio.DefaultDevice
	sda, scl := uint(bsc.DefaultSDAPin), uint(bsc.DefaultSCLPin)
	log := slog.Default()

	for _, opt := range opts {
		switch o := opt.(type) {
		case *ioBaseOption:
			ioBase = o.base
		case *deviceOption:
			device = o.path
		case *pinsOption:
			sda, scl = o.sda, o.scl
		case *loggerOption:
			log = o.log
		}
	}

	dev, err := mmio.Open(device)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	gpioWin, err := dev.Map(ioBase+gpio.WindowOffset, gpio.WindowLen)
	if err != nil {
		dev.Close()
		return nil, &Error{Op: "map gpio window", Err: err}
	}

	bscWin, err := dev.Map(ioBase+bsc.WindowOffset, bsc.WindowLen)
	if err != nil {
		gpioWin.Close()
		dev.Close()
		return nil, &Error{Op: "map bsc window", Err: err}
	}

	mux := gpio.NewMux(gpioWin)
	s := &Slave{
		log:     log,
		dev:     dev,
		gpioWin: gpioWin,
		bscWin:  bscWin,
		mux:     mux,
		engine: bsc.New(bsc.Config{
			Regs:   bscWin,
			Mux:    mux,
			Logger: log,
			SDAPin: sda,
			SCLPin: scl,
		}),
	}
	return s, nil
}

// Close disables the peripheral if needed and releases the register
// mappings. The Slave is unusable afterwards. Safe to call more than
// once.
func (s *Slave) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.enabled {
		s.engine.Disable()
		s.enabled = false
	}

	var first error
	if s.bscWin != nil {
		if err := s.bscWin.Close(); err != nil {
			first = err
		}
	}
	if s.gpioWin != nil {
		if err := s.gpioWin.Close(); err != nil && first == nil {
			first = err
		}
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Enable configures the data and clock pins for the peripheral and
// programs it as an I2C slave listening on addr. addr is the 8-bit
// address including the R/W bit convention; the bare 7-bit address is
// stored.
func (s *Slave) Enable(addr byte) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.engine.Enable(addr); err != nil {
		return err
	}
	s.enabled = true
	s.log.Debug("i2c slave enabled", "addr", addr>>1)
	return nil
}

// Disable turns the peripheral off. No Read or Write may be in flight.
// The register mappings stay valid, so Enable may be called again.
func (s *Slave) Disable() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.engine.Disable(); err != nil {
		return err
	}
	s.enabled = false
	s.log.Debug("i2c slave disabled")
	return nil
}

// Receiving reports whether the master is actively clocking a write
// transaction to us.
func (s *Slave) Receiving() bool {
	if s.closed {
		return false
	}
	return s.engine.Receiving()
}

// Read drains bytes the master has written into buf without blocking.
// It returns as soon as the receive FIFO is empty or buf is full,
// possibly having read nothing. ctx bounds the drain between bytes.
func (s *Slave) Read(ctx context.Context, buf []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.engine.ReadPoll(ctx, buf)
}

// Write answers master-initiated reads with bytes from tx, starting at
// addr, until the master begins a write instead. It returns the number
// of bytes the master actually consumed; bytes queued but unread at
// turnaround are discarded. Write blocks until the master turns around
// or ctx is cancelled.
func (s *Slave) Write(ctx context.Context, tx TxFunc, addr uint16) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.engine.WritePoll(ctx, tx, addr)
}

// SetOutput drives a GPIO pin high, low, or floating. It is available
// whenever the Slave is open, independent of Enable, and is the only
// operation safe to use concurrently with transfers as long as the pin
// does not share a function-select register with the bus pins.
func (s *Slave) SetOutput(pin uint, state PinState) error {
	if s.closed {
		return ErrClosed
	}
	return s.mux.SetOutput(pin, state)
}
