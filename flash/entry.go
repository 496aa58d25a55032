package flash

import "encoding/binary"

// Directory layout constants. The entry layout is normative per spec.md §6:
// name bytes, then 32-bit little-endian start/size/size_complement, then the
// status byte, then three zero padding bytes — any future extension of this
// repo must keep the entry size fixed and these status values' meanings.
const (
	nameLen  = 24
	entrySize = nameLen + 4 + 4 + 4 + 1 + 3

	dirSlots = SectorSize / entrySize

	// DataStart is the first sector available for file data; sector 0 is
	// the directory.
	DataStart = 1
)

// Status byte values for a directory slot.
const (
	StatusEmpty   byte = 0xFF
	StatusActive  byte = 0xAA
	StatusDeleted byte = 0x55
)

type dirEntry struct {
	name           [nameLen]byte
	start          uint32
	size           uint32
	sizeComplement uint32
	status         byte
}

func emptyEntry() dirEntry {
	e := dirEntry{status: StatusEmpty}
	for i := range e.name {
		e.name[i] = 0xFF
	}
	e.start = 0xFFFFFFFF
	e.size = 0xFFFFFFFF
	e.sizeComplement = 0xFFFFFFFF
	return e
}

// nameOf decodes the entry's name, trimming the 0xFF erased-flash filler
// and any trailing NUL padding.
func (e dirEntry) nameOf() string {
	n := 0
	for n < len(e.name) && e.name[n] != 0xFF && e.name[n] != 0x00 {
		n++
	}
	return string(e.name[:n])
}

// setName accepts names up to and including nameLen bytes: a name that
// fills the field exactly has no padding byte left to mark its end, but
// nameOf's scan is bounded by len(e.name) regardless, so the full-length
// case round-trips correctly without a reserved terminator slot.
func setName(e *dirEntry, name string) bool {
	if len(name) > nameLen {
		return false
	}
	for i := range e.name {
		e.name[i] = 0x00
	}
	copy(e.name[:], name)
	return true
}

// complementValid reports whether the complement-check invariant holds:
// size ^ size_complement == 0xFFFFFFFF.
func (e dirEntry) complementValid() bool {
	return e.size^e.sizeComplement == 0xFFFFFFFF
}

func sectorsFor(size uint32) uint32 {
	return (size + SectorSize - 1) / SectorSize
}

func (e dirEntry) boundsValid() bool {
	if e.start < DataStart {
		return false
	}
	end := e.start + sectorsFor(e.size)
	return end <= TotalSectors
}

func (e dirEntry) extentEnd() uint32 {
	return e.start + sectorsFor(e.size)
}

func encodeEntry(e dirEntry) [entrySize]byte {
	var buf [entrySize]byte
	copy(buf[:nameLen], e.name[:])
	binary.LittleEndian.PutUint32(buf[nameLen:], e.start)
	binary.LittleEndian.PutUint32(buf[nameLen+4:], e.size)
	binary.LittleEndian.PutUint32(buf[nameLen+8:], e.sizeComplement)
	buf[nameLen+12] = e.status
	// remaining three bytes are the fixed zero padding.
	return buf
}

func decodeEntry(buf []byte) dirEntry {
	var e dirEntry
	copy(e.name[:], buf[:nameLen])
	e.start = binary.LittleEndian.Uint32(buf[nameLen:])
	e.size = binary.LittleEndian.Uint32(buf[nameLen+4:])
	e.sizeComplement = binary.LittleEndian.Uint32(buf[nameLen+8:])
	e.status = buf[nameLen+12]
	return e
}
