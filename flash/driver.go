// Package flash implements the low-level SPI NOR chip driver (NorFlashDriver,
// spec.md §4.3) and, in flatfs.go, the flat filesystem built on top of it
// (NorFlatFs, spec.md §4.4).
package flash

import (
	"time"

	"github.com/scopebridge/firmware/errs"
	"github.com/scopebridge/firmware/spibus"
)

// Chip geometry for a W25Q128-class 16 MiB part.
const (
	PageSize     = 256
	SectorSize   = 4 * 1024
	ChipSize     = 16 * 1024 * 1024
	TotalSectors = ChipSize / SectorSize
)

// SPI command bytes.
const (
	cmdRead         = 0x03
	cmdPageProgram  = 0x02
	cmdSectorErase  = 0x20
	cmdChipErase    = 0xC7
	cmdWriteEnable  = 0x06
	cmdReadStatus1  = 0x05
	cmdJedecID      = 0x9F
)

const statusBusyBit = 1 // WIP bit of status register 1

// Default poll timeouts, overridable per call via the *Timeout variants.
const (
	DefaultPageProgramTimeout = 1 * time.Second
	DefaultSectorEraseTimeout = 5 * time.Second
	DefaultChipEraseTimeout   = 60 * time.Second

	// pollInterval is the cooperative yield between status polls.
	pollInterval = 1 * time.Millisecond
)

// JedecID is the 3-byte manufacturer/device identifier returned by Probe.
type JedecID uint32

// Driver is the low-level NOR flash driver: read / page-program /
// sector-erase / chip-erase over a synchronous SPI bus, with explicit
// per-operation timeouts and no retry (spec.md §4.3: "a hard error
// reported to the caller; no automatic retry").
type Driver struct {
	bus spibus.Bus
	cs  spibus.ChipSelect

	sleep func(time.Duration)
	now   func() time.Time
}

// New constructs a Driver over the given bus and chip-select line.
func New(bus spibus.Bus, cs spibus.ChipSelect) *Driver {
	return &Driver{
		bus:   bus,
		cs:    cs,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// SetClockHooks overrides the sleep/now primitives; used by tests.
func (d *Driver) SetClockHooks(sleep func(time.Duration), now func() time.Time) {
	if sleep != nil {
		d.sleep = sleep
	}
	if now != nil {
		d.now = now
	}
}

func addr24(addr uint32) [3]byte {
	return [3]byte{byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// Probe reads the JEDEC manufacturer/device ID. 0x000000 and 0xFFFFFF both
// mean "no device present" per spec.md §4.3.
func (d *Driver) Probe() (JedecID, error) {
	tx := []byte{cmdJedecID, 0, 0, 0}
	rx := make([]byte, len(tx))

	if err := d.transfer(tx, rx); err != nil {
		return 0, err
	}

	id := JedecID(uint32(rx[1])<<16 | uint32(rx[2])<<8 | uint32(rx[3]))
	if id == 0x000000 || id == 0xFFFFFF {
		return id, errs.New(errs.NotReady, "no NOR flash device detected")
	}

	return id, nil
}

func (d *Driver) transfer(tx, rx []byte) error {
	d.cs.Select(true)
	defer d.cs.Select(false)
	return d.bus.Tx(tx, rx)
}

// Read reads len(buf) bytes starting at addr into buf.
func (d *Driver) Read(addr uint32, buf []byte) error {
	a := addr24(addr)
	header := []byte{cmdRead, a[0], a[1], a[2]}

	d.cs.Select(true)
	defer d.cs.Select(false)

	if err := d.bus.Tx(header, nil); err != nil {
		return errs.New(errs.IoError, "nor read command: "+err.Error())
	}
	if err := d.bus.Tx(nil, buf); err != nil {
		return errs.New(errs.IoError, "nor read data: "+err.Error())
	}
	return nil
}

func (d *Driver) writeEnable() error {
	d.cs.Select(true)
	defer d.cs.Select(false)
	if err := d.bus.Tx([]byte{cmdWriteEnable}, nil); err != nil {
		return errs.New(errs.IoError, "nor write-enable: "+err.Error())
	}
	return nil
}

func (d *Driver) readStatus1() (byte, error) {
	tx := []byte{cmdReadStatus1, 0}
	rx := make([]byte, 2)

	d.cs.Select(true)
	defer d.cs.Select(false)

	if err := d.bus.Tx(tx, rx); err != nil {
		return 0, errs.New(errs.IoError, "nor read status: "+err.Error())
	}
	return rx[1], nil
}

// waitReady polls status register 1's WIP bit until clear or timeout
// expires, sleeping pollInterval between polls (cooperative, not busy-spin).
func (d *Driver) waitReady(timeout time.Duration) error {
	deadline := d.now().Add(timeout)

	for {
		status, err := d.readStatus1()
		if err != nil {
			return err
		}
		if status&statusBusyBit == 0 {
			return nil
		}
		if d.now().After(deadline) {
			return errs.New(errs.Timeout, "nor status poll exceeded budget")
		}
		d.sleep(pollInterval)
	}
}

// WritePage programs up to one page (256 bytes), which must not cross a
// page boundary. Blocks until the chip reports completion or timeout
// expires.
func (d *Driver) WritePage(addr uint32, buf []byte) error {
	return d.WritePageTimeout(addr, buf, DefaultPageProgramTimeout)
}

// WritePageTimeout is WritePage with an explicit timeout.
func (d *Driver) WritePageTimeout(addr uint32, buf []byte, timeout time.Duration) error {
	if len(buf) > PageSize {
		return errs.New(errs.BufferTooSmall, "page write exceeds page size")
	}
	if int(addr%PageSize)+len(buf) > PageSize {
		return errs.New(errs.IoError, "page write crosses page boundary")
	}

	if err := d.writeEnable(); err != nil {
		return err
	}

	a := addr24(addr)
	header := []byte{cmdPageProgram, a[0], a[1], a[2]}

	if err := func() error {
		d.cs.Select(true)
		defer d.cs.Select(false)
		if err := d.bus.Tx(header, nil); err != nil {
			return err
		}
		return d.bus.Tx(buf, nil)
	}(); err != nil {
		return errs.New(errs.IoError, "nor page program: "+err.Error())
	}

	return d.waitReady(timeout)
}

// EraseSector erases the 4 KiB sector at the given index.
func (d *Driver) EraseSector(sectorIndex int) error {
	return d.EraseSectorTimeout(sectorIndex, DefaultSectorEraseTimeout)
}

// EraseSectorTimeout is EraseSector with an explicit timeout.
func (d *Driver) EraseSectorTimeout(sectorIndex int, timeout time.Duration) error {
	if sectorIndex < 0 || sectorIndex >= TotalSectors {
		return errs.New(errs.IoError, "sector index out of range")
	}

	if err := d.writeEnable(); err != nil {
		return err
	}

	a := addr24(uint32(sectorIndex) * SectorSize)
	cmd := []byte{cmdSectorErase, a[0], a[1], a[2]}

	if err := func() error {
		d.cs.Select(true)
		defer d.cs.Select(false)
		return d.bus.Tx(cmd, nil)
	}(); err != nil {
		return errs.New(errs.IoError, "nor sector erase: "+err.Error())
	}

	return d.waitReady(timeout)
}

// EraseChip erases the entire device. Used only by format.
func (d *Driver) EraseChip(timeout time.Duration) error {
	if err := d.writeEnable(); err != nil {
		return err
	}

	if err := func() error {
		d.cs.Select(true)
		defer d.cs.Select(false)
		return d.bus.Tx([]byte{cmdChipErase}, nil)
	}(); err != nil {
		return errs.New(errs.IoError, "nor chip erase: "+err.Error())
	}

	return d.waitReady(timeout)
}
