package bsc

// Register file of the BSC (Broadcom Serial Controller) peripheral in
// slave mode. Byte offsets of the 32-bit registers within the window.
const (
	regData      uintptr = 0x00 // DR: data FIFO access
	regStatus    uintptr = 0x04 // RSR: operation status / error clear
	regSlaveAddr uintptr = 0x08 // SLV: 7-bit slave address
	regControl   uintptr = 0x0C // CR: operation control
	regFlags     uintptr = 0x10 // FR: FIFO and bus state flags
	regIrqLevel  uintptr = 0x14 // IFLS: interrupt FIFO level select
	regIrqMask   uintptr = 0x18 // IMSC: interrupt mask set/clear
	regIrqRaw    uintptr = 0x1C // RIS: raw interrupt status
	regIrqMasked uintptr = 0x20 // MIS: masked interrupt status
	regIrqClear  uintptr = 0x24 // ICR: interrupt clear
	regDmaCtl    uintptr = 0x28 // DMACR
	regTestData  uintptr = 0x2C // TDR: FIFO test data
	regGpuStatus uintptr = 0x30 // GPUSTAT
	regHostCtl   uintptr = 0x34 // HCTRL
	regDebug1    uintptr = 0x38 // I2C debug
	regDebug2    uintptr = 0x3C // SPI debug
)

// Control register bits.
const (
	crEnable = 1 << 0 // EN: enable device
	crSPI    = 1 << 1 // SPI mode
	crI2C    = 1 << 2 // I2C mode
	crCPHA   = 1 << 3
	crCPOL   = 1 << 4
	crBreak  = 1 << 7 // BRK: break current operation
	crTxEn   = 1 << 8 // TXE: transmit enable
	crRxEn   = 1 << 9 // RXE: receive enable
)

// Flag register bits.
const (
	frTxBusy      = 1 << 0 // transmit in progress
	frRxFifoEmpty = 1 << 1
	frTxFifoFull  = 1 << 2
	frRxFifoFull  = 1 << 3
	frTxFifoEmpty = 1 << 4
	frRxBusy      = 1 << 5 // receive in progress

	frTxLevelShift = 6
	frTxLevelMask  = 0x1F << frTxLevelShift
	frRxLevelShift = 11
	frRxLevelMask  = 0x1F << frRxLevelShift
)

// Status register bits. Writing a zero to a set bit clears the condition.
const (
	rsrOverrun  = 1 << 0 // RX FIFO was full, an incoming byte was dropped
	rsrUnderrun = 1 << 1 // TX FIFO was empty when the master clocked a read
)

const (
	irqAll = 0xF // all four interrupt sources

	// FifoDepth is the depth of each hardware FIFO. Determined
	// empirically; the BCM2835 ARM Peripherals document does not state
	// it.
	FifoDepth = 16
)

// WindowOffset and WindowLen locate the BSC slave register window
// relative to the SoC I/O base.
const (
	WindowOffset = 0x214000
	WindowLen    = 0x40
)

// Dedicated pins and their alternate function for BSC slave operation.
const (
	DefaultSDAPin = 18
	DefaultSCLPin = 19
)
