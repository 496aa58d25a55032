package flash

import (
	"strings"

	"github.com/scopebridge/firmware/errs"
)

// FlatFS is the flat filesystem described in spec.md §4.4: a fixed
// directory held in sector 0 and sector-aligned, contiguous data extents
// in the sectors above it. There are no subdirectories, no renames, and no
// partial overwrite — matching spec.md §1's explicit non-goals.
type FlatFS struct {
	drv *Driver

	dir          [dirSlots]dirEntry
	nextFree     uint32
	activeCount  int
	deletedCount int

	moveBuf [SectorSize]byte
}

// NewFlatFS constructs a FlatFS over the given low-level driver. Mount or
// Format must be called before any other operation.
func NewFlatFS(drv *Driver) *FlatFS {
	return &FlatFS{drv: drv, nextFree: DataStart}
}

// Mount reads the directory sector into RAM and validates every ACTIVE
// slot. A slot that fails the complement check, bounds check, or has an
// empty name is demoted to DELETED in the in-RAM mirror only. It reaches
// the medium with the next directory persist (a CreateWrite or Delete);
// Fsck does not persist it, since the mirror already shows it DELETED.
func (fs *FlatFS) Mount() error {
	var sector [SectorSize]byte
	if err := fs.drv.Read(0, sector[:]); err != nil {
		return errs.New(errs.IoError, "flatfs: directory sector unreadable: "+err.Error())
	}

	fs.activeCount = 0
	fs.deletedCount = 0
	maxEnd := uint32(DataStart)

	for i := 0; i < dirSlots; i++ {
		off := i * entrySize
		e := decodeEntry(sector[off : off+entrySize])
		fs.dir[i] = e

		switch e.status {
		case StatusActive:
			if !e.complementValid() || e.nameOf() == "" || !e.boundsValid() {
				fs.dir[i].status = StatusDeleted
				fs.deletedCount++
				continue
			}
			fs.activeCount++
			if end := e.extentEnd(); end > maxEnd {
				maxEnd = end
			}
		case StatusDeleted:
			fs.deletedCount++
		}
	}

	fs.nextFree = maxEnd
	return nil
}

// Format erases the directory sector and resets it to all-EMPTY. Data
// sectors are left untouched — they are erased lazily, just before the
// next write that needs them.
func (fs *FlatFS) Format() error {
	if err := fs.drv.EraseSector(0); err != nil {
		return errs.New(errs.IoError, "flatfs: format erase: "+err.Error())
	}

	for i := range fs.dir {
		fs.dir[i] = emptyEntry()
	}
	fs.activeCount = 0
	fs.deletedCount = 0
	fs.nextFree = DataStart

	return nil
}

func (fs *FlatFS) findActive(name string) int {
	for i, e := range fs.dir {
		if e.status == StatusActive && strings.EqualFold(e.nameOf(), name) {
			return i
		}
	}
	return -1
}

func (fs *FlatFS) findFreeSlot() int {
	for i, e := range fs.dir {
		if e.status == StatusEmpty || e.status == StatusDeleted {
			return i
		}
	}
	return -1
}

// persistDirectory rewrites the entire directory sector from the in-RAM
// mirror. Entries only ever transition toward clearer bit patterns when
// programmed in place (EMPTY/DELETED -> ACTIVE narrows 0xFF bytes), but a
// reused slot's old field bytes may need bits set back to 1, which NOR
// program cannot do — so every persist erases sector 0 first and rewrites
// it in full, the same way Format does, just without resetting the mirror.
func (fs *FlatFS) persistDirectory() error {
	if err := fs.drv.EraseSector(0); err != nil {
		return errs.New(errs.IoError, "flatfs: directory persist erase: "+err.Error())
	}

	var sector [SectorSize]byte
	for i := range sector {
		sector[i] = 0xFF
	}
	for i, e := range fs.dir {
		enc := encodeEntry(e)
		copy(sector[i*entrySize:], enc[:])
	}

	for off := 0; off < SectorSize; off += PageSize {
		if err := fs.drv.WritePage(uint32(off), sector[off:off+PageSize]); err != nil {
			return errs.New(errs.IoError, "flatfs: directory persist write: "+err.Error())
		}
	}

	return nil
}

// CreateWrite stores bytes under name, replacing any existing file of the
// same name (case-insensitive). Returns the number of bytes written.
func (fs *FlatFS) CreateWrite(name string, data []byte) (int, error) {
	if name == "" || len(name) > nameLen {
		return 0, errs.New(errs.InvalidName, "flatfs: invalid name")
	}

	if idx := fs.findActive(name); idx >= 0 {
		if err := fs.deleteSlot(idx); err != nil {
			return 0, err
		}
	}

	slot := fs.findFreeSlot()
	if slot < 0 {
		return 0, errs.New(errs.NoSpace, "flatfs: directory full")
	}

	needed := sectorsFor(uint32(len(data)))
	start, err := fs.reserveExtent(needed)
	if err != nil {
		return 0, err
	}

	if err := fs.writeExtent(start, data); err != nil {
		// reservation is released implicitly: nextFree is only advanced
		// below, after a successful write, so a failed write never
		// consumes space.
		return 0, errs.New(errs.IoError, "flatfs: write failed: "+err.Error())
	}

	var e dirEntry
	setName(&e, name)
	e.start = start
	e.size = uint32(len(data))
	e.sizeComplement = ^e.size
	e.status = StatusActive
	fs.dir[slot] = e

	if err := fs.persistDirectory(); err != nil {
		return 0, err
	}

	fs.activeCount++
	if end := start + needed; end > fs.nextFree {
		fs.nextFree = end
	}

	return len(data), nil
}

// reserveExtent finds `needed` contiguous free sectors, defragmenting once
// if the tail does not have enough room.
func (fs *FlatFS) reserveExtent(needed uint32) (uint32, error) {
	if fs.nextFree+needed <= TotalSectors {
		return fs.nextFree, nil
	}

	fs.Defragment()

	if fs.nextFree+needed <= TotalSectors {
		return fs.nextFree, nil
	}

	return 0, errs.New(errs.NoSpace, "flatfs: insufficient contiguous space")
}

// writeExtent erases each sector the extent covers just before writing it,
// then writes the data page by page.
func (fs *FlatFS) writeExtent(start uint32, data []byte) error {
	numSectors := sectorsFor(uint32(len(data)))

	for s := uint32(0); s < numSectors; s++ {
		if err := fs.drv.EraseSector(int(start + s)); err != nil {
			return err
		}
	}

	addr := start * SectorSize
	off := 0
	for off < len(data) {
		n := PageSize
		if off+n > len(data) {
			n = len(data) - off
		}
		if err := fs.drv.WritePage(addr+uint32(off), data[off:off+n]); err != nil {
			return err
		}
		off += n
	}

	return nil
}

// Read copies up to min(size(name), len(dst)) bytes of the named file into
// dst, returning the number of bytes copied.
func (fs *FlatFS) Read(name string, dst []byte) (int, error) {
	idx := fs.findActive(name)
	if idx < 0 {
		return 0, errs.New(errs.NotFound, "flatfs: "+name)
	}

	e := fs.dir[idx]
	n := int(e.size)
	if n > len(dst) {
		n = len(dst)
	}

	if err := fs.drv.Read(e.start*SectorSize, dst[:n]); err != nil {
		return 0, errs.New(errs.IoError, "flatfs: read: "+err.Error())
	}

	return n, nil
}

func (fs *FlatFS) deleteSlot(idx int) error {
	fs.dir[idx].status = StatusDeleted
	if err := fs.persistDirectory(); err != nil {
		return err
	}
	fs.activeCount--
	fs.deletedCount++
	return nil
}

// Delete marks the named file DELETED. Data sectors are not erased; the
// space is only recoverable via Defragment or Format.
func (fs *FlatFS) Delete(name string) error {
	idx := fs.findActive(name)
	if idx < 0 {
		return errs.New(errs.NotFound, "flatfs: "+name)
	}
	return fs.deleteSlot(idx)
}

// Exists reports whether an ACTIVE file with this name (case-insensitive)
// exists.
func (fs *FlatFS) Exists(name string) bool {
	return fs.findActive(name) >= 0
}

// Size returns the named file's size, or ok=false if it does not exist.
func (fs *FlatFS) Size(name string) (size int, ok bool) {
	idx := fs.findActive(name)
	if idx < 0 {
		return 0, false
	}
	return int(fs.dir[idx].size), true
}

// List fills buf with ACTIVE file names and returns the count filled.
func (fs *FlatFS) List(buf []string) int {
	n := 0
	for _, e := range fs.dir {
		if e.status != StatusActive {
			continue
		}
		if n >= len(buf) {
			break
		}
		buf[n] = e.nameOf()
		n++
	}
	return n
}

// ActiveCount and DeletedCount expose the directory counters.
func (fs *FlatFS) ActiveCount() int  { return fs.activeCount }
func (fs *FlatFS) DeletedCount() int { return fs.deletedCount }

// Fsck repeats the mount-time integrity check over the current in-RAM
// directory, demoting any now-invalid ACTIVE slot to DELETED, persisting
// only if something changed. Returns true if the directory was left
// unchanged (consistent), false if a repair was made.
func (fs *FlatFS) Fsck() bool {
	changed := false

	for i, e := range fs.dir {
		if e.status != StatusActive {
			continue
		}
		if !e.complementValid() || e.nameOf() == "" || !e.boundsValid() {
			fs.dir[i].status = StatusDeleted
			fs.activeCount--
			fs.deletedCount++
			changed = true
		}
	}

	if changed {
		fs.persistDirectory()
	}

	return !changed
}

// Defragment compacts every ACTIVE extent toward low sector addresses, in
// directory-slot order, freeing trailing space for reservation. Returns
// true if anything moved.
func (fs *FlatFS) Defragment() bool {
	moved := false
	cursor := uint32(DataStart)

	for i, e := range fs.dir {
		if e.status != StatusActive {
			continue
		}

		needed := sectorsFor(e.size)
		if e.start != cursor {
			if fs.moveExtent(e.start, cursor, e.size) {
				fs.dir[i].start = cursor
				moved = true
			} else {
				// could not move this extent; its entry keeps its
				// original start and compaction resumes after it.
				cursor = e.start + needed
				continue
			}
		}

		cursor += needed
	}

	if moved {
		fs.persistDirectory()
	}
	fs.nextFree = cursor

	return moved
}

// moveExtent relocates a `size`-byte extent from src to dst, one sector at
// a time, using the FlatFS's fixed move buffer. dst must be <= src so the
// forward sector-by-sector copy never reads a sector it has not yet
// consumed from a previous iteration.
func (fs *FlatFS) moveExtent(src, dst uint32, size uint32) bool {
	if dst > src {
		return false
	}
	if dst == src {
		return true
	}

	numSectors := sectorsFor(size)

	for s := uint32(0); s < numSectors; s++ {
		if err := fs.drv.Read((src+s)*SectorSize, fs.moveBuf[:]); err != nil {
			return false
		}
		if err := fs.drv.EraseSector(int(dst + s)); err != nil {
			return false
		}
		addr := (dst + s) * SectorSize
		for off := 0; off < SectorSize; off += PageSize {
			if err := fs.drv.WritePage(addr+uint32(off), fs.moveBuf[off:off+PageSize]); err != nil {
				return false
			}
		}
	}

	return true
}
