// Package mmio maps physical register windows into the process address
// space and provides volatile 32-bit access to them.
//
// Hardware registers are reached through the Region32 interface so that
// the protocol code above this package can run against simulated register
// files in tests.
package mmio

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDevice is the physical-memory access device on Linux.
const DefaultDevice = "/dev/mem"

// Region32 is a word-addressed window of 32-bit hardware registers.
// Accesses have side effects and must not be elided, cached or reordered
// by the implementation.
type Region32 interface {
	// Read32 loads the register at byte offset off. off must be
	// word-aligned and inside the window.
	Read32(off uintptr) uint32
	// Write32 stores v to the register at byte offset off.
	Write32(off uintptr, v uint32)
}

// Device is an open handle to the physical-memory access device. Windows
// are mapped from it and remain valid after the Device is closed.
type Device struct {
	fd int
}

// Open opens the physical-memory access device at path, typically
// /dev/mem. Requires read-write access, which usually means root.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{fd: fd}, nil
}

// Close closes the underlying device. Existing mappings stay valid.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return fmt.Errorf("close mem device: %w", err)
	}
	return nil
}

// Map maps length bytes of physical address space starting at base,
// read-write, shared and locked so the window cannot be paged out under
// a polling loop.
func (d *Device) Map(base uintptr, length int) (*Window, error) {
	if d.fd < 0 {
		return nil, fmt.Errorf("map 0x%x: device closed", base)
	}
	mem, err := unix.Mmap(
		d.fd,
		int64(base),
		length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_LOCKED,
	)
	if err != nil {
		return nil, fmt.Errorf("map 0x%x+0x%x: %w", base, length, err)
	}
	return &Window{mem: mem}, nil
}

// Window is one mapped register window. It implements Region32.
type Window struct {
	mem []byte
}

// Close unmaps the window. Safe to call more than once.
func (w *Window) Close() error {
	if w.mem == nil {
		return nil
	}
	mem := w.mem
	w.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("unmap window: %w", err)
	}
	return nil
}

// Read32 implements Region32. The atomic load keeps the compiler from
// caching or reordering register reads; the O_SYNC mapping keeps the
// hardware from seeing stale values.
func (w *Window) Read32(off uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&w.mem[off])))
}

// Write32 implements Region32.
func (w *Window) Write32(off uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&w.mem[off])), v)
}
