// Command gpioset drives a single GPIO pin high, low, or floating.
// Floating reconfigures the pin as an input, which is the closest the
// SoC gets to an open-drain output.
package main

import (
	"flag"
	"fmt"
	"os"

	pi2cslave "github.com/EQware-Engineering-Inc/libpi2cslave"
	"github.com/EQware-Engineering-Inc/libpi2cslave/internal/gpio"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gpioset: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	pin := flag.Uint("pin", 0, "GPIO pin number")
	state := flag.String("state", "", "output state: float, low or high")
	device := flag.String("device", "/dev/mem", "physical-memory access device")
	ioBase := flag.Uint64("io-base", 0, "SoC I/O base address (default BCM2836/7)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -pin N -state {float|low|high}\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	st, err := gpio.ParseState(*state)
	if err != nil {
		return err
	}

	opts := []pi2cslave.Option{pi2cslave.WithDevice(*device)}
	if *ioBase != 0 {
		opts = append(opts, pi2cslave.WithIOBase(uintptr(*ioBase)))
	}
	slave, err := pi2cslave.Open(opts...)
	if err != nil {
		return err
	}
	defer slave.Close()

	return slave.SetOutput(*pin, st)
}
