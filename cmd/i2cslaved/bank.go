package main

import "sync"

// Bank is the register bank served to the bus master. The master sets
// a read/write pointer by writing its first byte, writes data at the
// pointer, and reads back from the pointer with auto-increment, like a
// common I2C EEPROM or sensor register file. Addresses wrap at the
// bank size.
//
// The poll loop and any local inspector may touch the bank from
// different goroutines, so access is locked.
type Bank struct {
	mu  sync.Mutex
	mem []byte
}

// NewBank returns a zeroed bank of the given size.
func NewBank(size int) *Bank {
	return &Bank{mem: make([]byte, size)}
}

// Load copies data into the bank starting at offset 0.
func (b *Bank) Load(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.mem, data)
}

// Store writes data starting at ptr and returns the advanced pointer.
func (b *Bank) Store(ptr uint16, data []byte) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range data {
		b.mem[int(ptr)%len(b.mem)] = d
		ptr++
	}
	return ptr
}

// Tx supplies the byte at addr, wrapping at the bank size. It never
// runs out of data: the master decides how much to read.
func (b *Bank) Tx(addr uint16) (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem[int(addr)%len(b.mem)], true
}

// Snapshot returns a copy of the bank contents.
func (b *Bank) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.mem...)
}
