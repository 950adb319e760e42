// Package bsc drives the BCM283x BSC peripheral in I2C slave mode.
//
// The engine polls the peripheral's FIFOs directly; there is no
// interrupt or DMA support. Only one goroutine may drive an Engine at a
// time, since all operations share the same hardware register state.
package bsc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/gpio"
	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/mmio"
)

// writePollInterval is how long WritePoll sleeps between FIFO state
// checks while the master is idle or still reading.
const writePollInterval = 25 * time.Microsecond

// ErrNotEnabled is returned when a poll runs before Enable or after
// Disable.
var ErrNotEnabled = errors.New("slave not enabled")

// TxFunc supplies one byte for the given transfer address, or reports
// that it has no more data for this request. It runs inside the FIFO
// fill loop and must not block for long, or the master will see
// underruns.
type TxFunc func(addr uint16) (byte, bool)

// Engine owns the BSC register window and implements the slave-mode
// transfer protocol.
type Engine struct {
	regs mmio.Region32
	mux  *gpio.Mux
	log  *slog.Logger

	sda, scl uint
	enabled  bool
}

// Config carries the wiring of an Engine. Zero pin values select the
// SoC's dedicated BSC slave pins.
type Config struct {
	Regs   mmio.Region32
	Mux    *gpio.Mux
	Logger *slog.Logger
	SDAPin uint
	SCLPin uint
}

// New returns an Engine over an already-mapped BSC register window. The
// peripheral is untouched until Enable is called.
func New(cfg Config) *Engine {
	e := &Engine{
		regs: cfg.Regs,
		mux:  cfg.Mux,
		log:  cfg.Logger,
		sda:  cfg.SDAPin,
		scl:  cfg.SCLPin,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.sda == 0 {
		e.sda = DefaultSDAPin
	}
	if e.scl == 0 {
		e.scl = DefaultSCLPin
	}
	return e
}

// Enable programs the peripheral as an I2C slave listening on addr.
// addr is the 8-bit address including the R/W bit convention; the bare
// 7-bit address is stored. The data and clock pins are switched to the
// BSC alternate function.
func (e *Engine) Enable(addr byte) error {
	if e.enabled {
		return fmt.Errorf("bsc: already enabled")
	}
	if err := e.mux.SetFunc(e.sda, gpio.FuncAlt3); err != nil {
		return fmt.Errorf("bsc: sda pin: %w", err)
	}
	if err := e.mux.SetFunc(e.scl, gpio.FuncAlt3); err != nil {
		return fmt.Errorf("bsc: scl pin: %w", err)
	}

	// Stop anything in progress, then clear errors and pending
	// interrupts. The interrupt sources stay unmasked even though we
	// poll; masking them also hides state from the raw status register.
	e.regs.Write32(regControl, crBreak)
	e.regs.Write32(regStatus, 0)
	e.regs.Write32(regIrqMask, irqAll)
	e.regs.Write32(regIrqClear, irqAll)

	e.regs.Write32(regSlaveAddr, uint32(addr)>>1)
	e.regs.Write32(regControl, crTxEn|crRxEn|crI2C|crEnable)

	e.enabled = true
	return nil
}

// Disable turns the peripheral off. No poll may be in flight.
func (e *Engine) Disable() error {
	if !e.enabled {
		return fmt.Errorf("bsc: %w", ErrNotEnabled)
	}
	e.regs.Write32(regControl, 0)
	e.enabled = false
	return nil
}

// Receiving reports whether the master is actively clocking a write
// transaction to us.
func (e *Engine) Receiving() bool {
	return e.enabled && e.regs.Read32(regFlags)&frRxBusy != 0
}

// ReadPoll drains the receive FIFO into buf without blocking: it
// returns as soon as the FIFO is empty or buf is full, possibly having
// read nothing. A receive overrun is logged, cleared and does not
// interrupt the drain.
//
// ctx is checked before and between bytes so a caller's poll loop can
// be torn down promptly.
func (e *Engine) ReadPoll(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if !e.enabled {
		return 0, fmt.Errorf("bsc: %w", ErrNotEnabled)
	}

	n := 0
	for n < len(buf) && e.regs.Read32(regFlags)&frRxFifoEmpty == 0 {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if rsr := e.regs.Read32(regStatus); rsr&rsrOverrun != 0 {
			e.log.Warn("bsc: receive overrun, byte lost")
			e.regs.Write32(regStatus, rsr&^rsrOverrun)
		}
		buf[n] = byte(e.regs.Read32(regData))
		n++
	}
	return n, nil
}

// WritePoll answers master-initiated reads with bytes from tx until the
// master begins a write instead, then flushes the transmit FIFO so a
// future read cannot see stale bytes.
//
// tx is invoked with addr, addr+1, ... (wrapping at 16 bits) once per
// fill attempt, whether or not it produces a byte. The returned count is
// the number of bytes the master actually consumed, which can be less
// than the number queued: bytes still in the FIFO at turnaround are
// discarded by the flush.
//
// On cancellation the transmit FIFO is left unflushed and the returned
// count is the number of bytes queued so far, not sent.
func (e *Engine) WritePoll(ctx context.Context, tx TxFunc, addr uint16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !e.enabled {
		return 0, fmt.Errorf("bsc: %w", ErrNotEnabled)
	}

	queued := 0

	// Keep replying as long as the master is not writing to us.
	for e.regs.Read32(regFlags)&frRxFifoEmpty != 0 {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		// Keep the TX FIFO full.
		for e.regs.Read32(regFlags)&frTxFifoFull == 0 {
			if err := ctx.Err(); err != nil {
				return queued, err
			}
			if rsr := e.regs.Read32(regStatus); rsr&rsrUnderrun != 0 {
				e.log.Warn("bsc: transmit underrun")
				e.regs.Write32(regStatus, rsr&^rsrUnderrun)
			}
			b, ok := tx(addr)
			addr++
			if !ok {
				// The callback is out of data for this request. Stay in
				// the outer loop: the master may still be reading.
				break
			}
			e.regs.Write32(regData, uint32(b))
			queued++
		}
		time.Sleep(writePollInterval)
	}

	// Sent = queued, minus what is still sitting in the FIFO, minus the
	// one byte the hardware has staged for transmission but never sent.
	level := int(e.regs.Read32(regFlags)&frTxLevelMask) >> frTxLevelShift
	sent := queued - level - 1

	e.flushTx()

	if sent < 0 {
		// Seen during startup instability; report it rather than a
		// negative count.
		e.log.Warn("bsc: negative sent count clamped",
			"queued", queued, "level", level)
		sent = 0
	}
	return sent, nil
}

// flushTx empties the transmit FIFO. The documented BRK control bit does
// not clear the FIFO on this peripheral; what does work is toggling
// transmit-enable, which drops the staged byte and re-stages the next
// FIFO entry. One extra toggle after the FIFO reports empty drops the
// final staged byte, which the empty flag does not account for.
func (e *Engine) flushTx() {
	for e.regs.Read32(regFlags)&frTxFifoEmpty == 0 {
		e.toggleTx()
	}
	e.toggleTx()
}

func (e *Engine) toggleTx() {
	cr := e.regs.Read32(regControl)
	e.regs.Write32(regControl, cr&^crTxEn)
	e.regs.Write32(regControl, cr|crTxEn)
}
