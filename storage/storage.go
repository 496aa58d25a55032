// Package storage implements the uniform file interface over the three
// pluggable backends (spec.md §4.7 StorageRouter) and the backend contract
// each of SdBackend, the NOR flat filesystem, and HexStreamBackend
// implements.
package storage

// Kind identifies a backing store.
type Kind byte

const (
	Sd Kind = iota
	Nor
	Hex
	Auto
)

func (k Kind) String() string {
	switch k {
	case Sd:
		return "sd"
	case Nor:
		return "nor"
	case Hex:
		return "hex"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// Stats are the router's running totals across every backend it has
// dispatched to.
type Stats struct {
	FilesWritten uint32
	BytesWritten uint64
	FilesRead    uint32
	BytesRead    uint64
}

// Backend is the uniform storage interface every concrete backend (SD/FAT,
// NOR flat filesystem, hex stream) satisfies. A backend reports an operation
// it cannot perform through that method's own return value: SD's Format
// returns errs.Unsupported, and the hex stream's Delete returns
// errs.NotFound.
type Backend interface {
	Kind() Kind

	// Update re-probes readiness. Called once per router tick.
	Update()
	IsReady() bool

	Write(name string, data []byte) (int, error)
	Read(name string, dst []byte) (int, error)
	Exists(name string) bool
	Size(name string) (int, bool)
	List(buf []string) int
	Delete(name string) error
	Format() error

	// Space reports (available, total) in bytes. Backends with no
	// meaningful notion of either (a stream) report (0, 0).
	Space() (available, total uint64)
}
