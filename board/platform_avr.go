//go:build avr

package board

import "github.com/scopebridge/firmware/internal/mmio"

// Register addresses for an ATmega328P-class target (arduino/avr
// convention): PORTx/DDRx/PINx triads at their datasheet-fixed I/O
// addresses. A different 8-bit target swaps this one file behind the same
// build tag, mirroring the teacher's per-board register map file.
const (
	addrPINB  = 0x23
	addrDDRB  = 0x24
	addrPORTB = 0x25

	addrPINC  = 0x26
	addrDDRC  = 0x27
	addrPORTC = 0x28

	addrPIND  = 0x29
	addrDDRD  = 0x2A
	addrPORTD = 0x2B
)

// PortB, PortC, and PortD expose the three 8-bit GPIO banks used to wire
// the parallel data bus, handshake lines, SD detect/write-protect lines,
// and SPI NOR chip-select on this target.
var (
	PortB = bank{out: mmio.NewReg8(addrPORTB), dir: mmio.NewReg8(addrDDRB), in: mmio.NewReg8(addrPINB)}
	PortC = bank{out: mmio.NewReg8(addrPORTC), dir: mmio.NewReg8(addrDDRC), in: mmio.NewReg8(addrPINC)}
	PortD = bank{out: mmio.NewReg8(addrPORTD), dir: mmio.NewReg8(addrDDRD), in: mmio.NewReg8(addrPIND)}
)

// bank groups one PORTx/DDRx/PINx register triad.
type bank struct {
	out mmio.Reg8
	dir mmio.Reg8
	in  mmio.Reg8
}
