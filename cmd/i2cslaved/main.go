// Command i2cslaved serves an I2C register bank as a bus slave on a
// Raspberry Pi, using the SoC's BSC peripheral. The master addresses
// the bank by writing a one-byte pointer, then reads or writes bytes
// at the pointer with auto-increment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	pi2cslave "github.com/EQware-Engineering-Inc/libpi2cslave"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "i2cslaved: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.Uint("addr", 0, "7-bit slave address (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Serve an I2C register bank as a bus slave.\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s -addr 0x42\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config /etc/i2cslaved.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			return err
		}
	}
	if *addr != 0 {
		cfg.Address = *addr
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *debug || cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	log := slog.New(handler)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	slaveOpts := []pi2cslave.Option{
		pi2cslave.WithDevice(cfg.Device),
		pi2cslave.WithLogger(log),
	}
	if cfg.IOBase != 0 {
		slaveOpts = append(slaveOpts, pi2cslave.WithIOBase(uintptr(cfg.IOBase)))
	}
	if cfg.SDAPin != 0 || cfg.SCLPin != 0 {
		slaveOpts = append(slaveOpts, pi2cslave.WithPins(cfg.SDAPin, cfg.SCLPin))
	}

	slave, err := pi2cslave.Open(slaveOpts...)
	if err != nil {
		return err
	}
	defer slave.Close()

	// The peripheral stores the bare 7-bit address; Enable takes the
	// 8-bit form with room for the R/W bit.
	if err := slave.Enable(byte(cfg.Address) << 1); err != nil {
		return err
	}

	bank := NewBank(cfg.BankSize)
	initial, err := cfg.initialBytes()
	if err != nil {
		return err
	}
	bank.Load(initial)

	log.Info("serving register bank",
		"addr", fmt.Sprintf("%#x", cfg.Address), "bankSize", cfg.BankSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(ctx, slave, bank, log)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutting down")
	return nil
}

// serve is the poll loop: drain master writes into the bank, answer
// master reads from it. The peripheral exposes no transaction
// boundaries in the byte stream, so the first byte received after each
// served read is taken as the new bank pointer; continuation chunks of
// a long write keep streaming into the bank.
func serve(ctx context.Context, slave *pi2cslave.Slave, bank *Bank, log *slog.Logger) error {
	buf := make([]byte, 64)
	var ptr uint16
	expectPtr := true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := slave.Read(ctx, buf)
		if err != nil {
			return err
		}
		if n > 0 {
			data := buf[:n]
			if expectPtr {
				ptr = uint16(data[0])
				data = data[1:]
				expectPtr = false
			}
			ptr = bank.Store(ptr, data)
			log.Debug("master write", "bytes", n, "ptr", ptr)
			if slave.Receiving() {
				// More of the same write transaction still clocking in.
				continue
			}
		}

		sent, err := slave.Write(ctx, bank.Tx, ptr)
		if err != nil {
			return err
		}
		if sent > 0 {
			log.Debug("master read", "bytes", sent, "ptr", ptr)
			ptr += uint16(sent)
		}
		// Write returns once the master starts writing; that write
		// opens a new transaction, so its first byte is a pointer.
		expectPtr = true
	}
}
