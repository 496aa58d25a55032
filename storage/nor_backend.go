package storage

import "github.com/scopebridge/firmware/flash"

// norBackend adapts *flash.FlatFS to the Backend interface. NOR has no
// detachable-media concept, so IsReady/Update degrade to "was Mount ever
// successful" rather than any live presence check.
type norBackend struct {
	fs    *flash.FlatFS
	ready bool
}

// NewNorBackend wraps an already-constructed FlatFS. Call Update once
// before first use to run the initial mount probe.
func NewNorBackend(fs *flash.FlatFS) Backend {
	return &norBackend{fs: fs}
}

func (b *norBackend) Kind() Kind { return Nor }

func (b *norBackend) Update() {
	if b.ready {
		return
	}
	b.ready = b.fs.Mount() == nil
}

func (b *norBackend) IsReady() bool { return b.ready }

func (b *norBackend) Write(name string, data []byte) (int, error) {
	return b.fs.CreateWrite(name, data)
}

func (b *norBackend) Read(name string, dst []byte) (int, error) {
	return b.fs.Read(name, dst)
}

func (b *norBackend) Exists(name string) bool { return b.fs.Exists(name) }

func (b *norBackend) Size(name string) (int, bool) { return b.fs.Size(name) }

func (b *norBackend) List(buf []string) int { return b.fs.List(buf) }

func (b *norBackend) Delete(name string) error { return b.fs.Delete(name) }

func (b *norBackend) Format() error {
	if err := b.fs.Format(); err != nil {
		return err
	}
	b.ready = true
	return nil
}

func (b *norBackend) Space() (available, total uint64) {
	total = uint64(flash.TotalSectors-flash.DataStart) * flash.SectorSize

	// FlatFS tracks free space in sectors, not bytes; walk the active file
	// list and sum sizes to recover a byte-granular figure.
	var used uint64
	buf := make([]string, 256)
	for _, name := range buf[:b.fs.List(buf)] {
		if sz, ok := b.fs.Size(name); ok {
			used += uint64(sz)
		}
	}
	if used > total {
		used = total
	}
	return total - used, total
}
