package storage

import (
	"bytes"

	"github.com/scopebridge/firmware/errs"
)

// TransferBufferSize caps a single copy(): NorFlatFs has no append
// semantics, so a source exceeding this size is rejected rather than
// streamed (spec.md §4.7).
const TransferBufferSize = 8192

// Router is StorageRouter: uniform file operations dispatched to whichever
// backend is selected, plus the Auto fail-over policy.
type Router struct {
	backends map[Kind]Backend

	selected Kind
	manual   bool // true once the operator has picked a backend explicitly

	counter uint16
	stats   Stats

	transferBuf [TransferBufferSize]byte
}

// NewRouter constructs a Router. Any of sd, nor, hex may be nil if that
// backend is not present on this board; Auto selection simply skips it.
func NewRouter(sd, nor, hex Backend) *Router {
	r := &Router{backends: make(map[Kind]Backend, 3)}
	if sd != nil {
		r.backends[Sd] = sd
	}
	if nor != nil {
		r.backends[Nor] = nor
	}
	if hex != nil {
		r.backends[Hex] = hex
	}
	r.selected = Sd
	return r
}

// Update re-probes every backend's readiness, then re-runs the Auto policy
// if the router is in Auto mode (or the manually-selected backend has gone
// not-ready).
func (r *Router) Update() {
	for _, b := range r.backends {
		b.Update()
	}

	if r.manual {
		if cur := r.backends[r.selected]; cur != nil && cur.IsReady() {
			return
		}
		// the manually-selected backend went not-ready; fall back to auto
		// until the operator picks again.
		r.manual = false
	}

	r.selected = r.resolveAuto()
}

// resolveAuto implements the priority order: Sd if ready, else Nor if
// ready, else Hex if ready, else Sd as a stable default (spec.md §4.7).
func (r *Router) resolveAuto() Kind {
	for _, k := range []Kind{Sd, Nor, Hex} {
		if b := r.backends[k]; b != nil && b.IsReady() {
			return k
		}
	}
	return Sd
}

// current returns the backend for the router's selected kind, or
// errs.NotReady if none is wired or it isn't ready.
func (r *Router) current() (Backend, error) {
	b := r.backends[r.selected]
	if b == nil {
		return nil, errs.New(errs.NotReady, "storage: no backend wired for "+r.selected.String())
	}
	if !b.IsReady() {
		return nil, errs.New(errs.NotReady, "storage: "+r.selected.String()+" not ready")
	}
	return b, nil
}

func (r *Router) Write(name string, data []byte) (int, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	b, err := r.current()
	if err != nil {
		return 0, err
	}
	n, err := b.Write(name, data)
	if err == nil {
		r.stats.FilesWritten++
		r.stats.BytesWritten += uint64(n)
	}
	return n, err
}

// WriteAuto generates a name via autoName and writes it, returning the
// generated name alongside the usual result.
func (r *Router) WriteAuto(prefix, ext string, data []byte) (name string, n int, err error) {
	r.counter++
	name = autoName(prefix, r.counter, ext)
	n, err = r.Write(name, data)
	return name, n, err
}

func (r *Router) Read(name string, dst []byte) (int, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	b, err := r.current()
	if err != nil {
		return 0, err
	}
	n, err := b.Read(name, dst)
	if err == nil {
		r.stats.FilesRead++
		r.stats.BytesRead += uint64(n)
	}
	return n, err
}

func (r *Router) Exists(name string) bool {
	b, err := r.current()
	if err != nil {
		return false
	}
	return b.Exists(name)
}

func (r *Router) Size(name string) (int, bool) {
	b, err := r.current()
	if err != nil {
		return 0, false
	}
	return b.Size(name)
}

func (r *Router) List(buf []string) int {
	b, err := r.current()
	if err != nil {
		return 0
	}
	return b.List(buf)
}

func (r *Router) Delete(name string) error {
	b, err := r.current()
	if err != nil {
		return err
	}
	return b.Delete(name)
}

// Copy reads name from the `from` backend and writes it to the `to`
// backend, through the router's fixed transfer buffer. A source larger
// than TransferBufferSize is rejected (spec.md §4.7).
func (r *Router) Copy(name string, from, to Kind) error {
	src := r.backends[from]
	dst := r.backends[to]
	if src == nil || dst == nil {
		return errs.New(errs.NotReady, "storage: copy backend not wired")
	}
	if !src.IsReady() || !dst.IsReady() {
		return errs.New(errs.NotReady, "storage: copy backend not ready")
	}

	size, ok := src.Size(name)
	if !ok {
		return errs.New(errs.NotFound, "storage: "+name)
	}
	if size > TransferBufferSize {
		return errs.New(errs.BufferTooSmall, "storage: copy exceeds transfer buffer")
	}

	n, err := src.Read(name, r.transferBuf[:size])
	if err != nil {
		return err
	}

	if _, err := dst.Write(name, r.transferBuf[:n]); err != nil {
		return err
	}
	return nil
}

// Select switches to a manually-chosen backend. Returns false if that
// backend isn't wired or isn't ready; the router's selection is left
// unchanged in that case.
func (r *Router) Select(kind Kind) bool {
	if kind == Auto {
		r.manual = false
		r.selected = r.resolveAuto()
		return true
	}
	b := r.backends[kind]
	if b == nil || !b.IsReady() {
		return false
	}
	r.manual = true
	r.selected = kind
	return true
}

func (r *Router) Selected() Kind {
	if !r.manual {
		return Auto
	}
	return r.selected
}

func (r *Router) Space() (available, total uint64) {
	b, err := r.current()
	if err != nil {
		return 0, 0
	}
	return b.Space()
}

// testPattern is the canned 32-byte pattern test_write round-trips.
var testPattern = func() [32]byte {
	var p [32]byte
	for i := range p {
		p[i] = byte(i)
	}
	return p
}()

// TestWrite round-trips testPattern to "test.dat" and deletes it,
// returning true only on byte-for-byte equality (spec.md §4.7).
func (r *Router) TestWrite() bool {
	const name = "test.dat"
	defer r.Delete(name)

	if _, err := r.Write(name, testPattern[:]); err != nil {
		return false
	}

	var out [32]byte
	n, err := r.Read(name, out[:])
	if err != nil || n != len(testPattern) {
		return false
	}
	return bytes.Equal(out[:], testPattern[:])
}

func (r *Router) Stats() Stats { return r.stats }
