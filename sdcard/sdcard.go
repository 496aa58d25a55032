// Package sdcard implements SdBackend (spec.md §4.5): a thin adapter over a
// FAT-mounted SD volume, flattened to root-directory-only enumeration and
// folding card-detect / write-protect into a single readiness bit.
package sdcard

import (
	"github.com/scopebridge/firmware/errs"
	"github.com/scopebridge/firmware/storage"
)

// Volume is the shape this backend needs from a mounted FAT filesystem —
// the subset of tinygo.org/x/tinyfs/fat's os.File-like API flattened to
// root-directory operations, since subdirectory support is out of scope.
type Volume interface {
	Mount() error
	Unmount() error
	WriteFile(name string, data []byte) (int, error)
	ReadFile(name string, dst []byte) (int, error)
	Remove(name string) error
	Stat(name string) (size int, ok bool)
	List() []string
	FreeSpace() (available, total uint64)
}

// DetectLines is the pair of GPIO-sensed booleans that fold into
// is_ready() alongside mount state. Callers resolve active-low polarity
// themselves, so both methods report in "asserted" terms.
type DetectLines interface {
	CardPresent() bool    // card-detect asserted
	WriteProtected() bool // write-protect tab engaged
}

// Backend is SdBackend.
type Backend struct {
	vol     Volume
	lines   DetectLines
	mounted bool
}

// New constructs a Backend. Call Update once before first use to run the
// initial mount probe.
func New(vol Volume, lines DetectLines) *Backend {
	return &Backend{vol: vol, lines: lines}
}

func (b *Backend) Kind() storage.Kind { return storage.Sd }

// Update re-probes card presence and re-mounts or unmounts as needed. Per
// spec.md §4.5, insertion/removal is only detected here, between
// operations — never mid-call.
func (b *Backend) Update() {
	present := b.lines.CardPresent()

	switch {
	case present && !b.mounted:
		b.mounted = b.vol.Mount() == nil
	case !present && b.mounted:
		b.vol.Unmount()
		b.mounted = false
	}
}

// IsReady folds: mounted, card-detect asserted, write-protect deasserted.
func (b *Backend) IsReady() bool {
	return b.mounted && b.lines.CardPresent() && !b.lines.WriteProtected()
}

func (b *Backend) Write(name string, data []byte) (int, error) {
	if !b.mounted || !b.lines.CardPresent() {
		return 0, errs.New(errs.NotReady, "sd: not ready")
	}
	if b.lines.WriteProtected() {
		return 0, errs.New(errs.Unsupported, "sd: write-protected")
	}
	return b.vol.WriteFile(name, data)
}

func (b *Backend) Read(name string, dst []byte) (int, error) {
	if !b.mounted || !b.lines.CardPresent() {
		return 0, errs.New(errs.NotReady, "sd: not ready")
	}
	return b.vol.ReadFile(name, dst)
}

func (b *Backend) Exists(name string) bool {
	if !b.IsReady() {
		return false
	}
	_, ok := b.vol.Stat(name)
	return ok
}

func (b *Backend) Size(name string) (int, bool) {
	if !b.IsReady() {
		return 0, false
	}
	return b.vol.Stat(name)
}

// List returns entries from the root directory only (spec.md §4.5).
func (b *Backend) List(buf []string) int {
	if !b.IsReady() {
		return 0
	}
	names := b.vol.List()
	n := copy(buf, names)
	return n
}

func (b *Backend) Delete(name string) error {
	if !b.IsReady() {
		return errs.New(errs.NotReady, "sd: not ready")
	}
	return b.vol.Remove(name)
}

// Format is not supported on SD (spec.md §4.5).
func (b *Backend) Format() error {
	return errs.New(errs.Unsupported, "sd: format not supported")
}

func (b *Backend) Space() (available, total uint64) {
	if !b.IsReady() {
		return 0, 0
	}
	return b.vol.FreeSpace()
}
