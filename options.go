package pi2cslave

import "log/slog"

// Option configures a Slave during Open.
type Option interface {
	IsOption()
}

// WithIOBase sets the SoC I/O base physical address. The default,
// DefaultIOBase, fits the BCM2836/BCM2837 (Raspberry Pi 2/3); use
// 0x20000000 for the BCM2835 and 0xFE000000 for the BCM2711.
func WithIOBase(base uintptr) Option {
	return &ioBaseOption{base: base}
}

type ioBaseOption struct{ base uintptr }

func (*ioBaseOption) IsOption() {}

// WithDevice sets the physical-memory access device path. The default
// is /dev/mem.
func WithDevice(path string) Option {
	return &deviceOption{path: path}
}

type deviceOption struct{ path string }

func (*deviceOption) IsOption() {}

// WithPins overrides the data and clock pin numbers. The defaults are
// the SoC's dedicated BSC slave pins, 18 and 19.
func WithPins(sda, scl uint) Option {
	return &pinsOption{sda: sda, scl: scl}
}

type pinsOption struct{ sda, scl uint }

func (*pinsOption) IsOption() {}

// WithLogger sets the logger used for transfer diagnostics such as
// FIFO overrun and underrun reports.
func WithLogger(log *slog.Logger) Option {
	return &loggerOption{log: log}
}

type loggerOption struct{ log *slog.Logger }

func (*loggerOption) IsOption() {}
