// Package runloop implements RunLoop (spec.md §4.8): the single
// cooperative tick that drains the parallel receiver, routes captured
// bytes to storage, and emits periodic health observations. There is no
// preemption and no dynamic allocation — every buffer here is sized at
// compile time.
package runloop

import (
	"time"

	"github.com/scopebridge/firmware/errs"
	"github.com/scopebridge/firmware/parallel"
)

// chunkSize bounds how many bytes are drained from the receiver per tick;
// spec.md §4.8 calls this "a bounded chunk, at most the capacity of a
// small stack buffer".
const chunkSize = 64

const (
	statusInterval   = 5 * time.Second
	overflowInterval = 5 * time.Second
	memCheckInterval = 10 * time.Second
)

// errorThreshold is the number of consecutive non-OK component advances
// that demotes the loop into error-indication mode.
const errorThreshold = 8

// Snapshot is the periodic status observation (spec.md §4.8 step 3).
type Snapshot struct {
	BytesTotal   uint32
	Overflows    uint32
	UtilPct      uint8
	FreeMemBytes uint32
}

// Observer is the run loop's external collaborator — display, LED, or log.
type Observer interface {
	OnFileCaptured(name string, bytes int)
	OnError(kind errs.Kind, detail string)
	OnStatusTick(snap Snapshot)
}

// Component is an additional advance step the loop drives every tick
// alongside the receiver and router, e.g. a watchdog pet or a heartbeat.
// A non-nil error is logged via the observer and counted toward the
// error-indication threshold.
type Component func() error

// Receiver is the subset of *parallel.Receiver the run loop drives.
// Declaring it as an interface (rather than taking the concrete type)
// keeps RunLoop testable without real GPIO simulation.
type Receiver interface {
	Update()
	Available() int
	Read(dst []byte, max int) int
	HadOverflow() bool
	ClearOverflow()
	Stats() parallel.Stats
	UtilizationPct() uint8
}

// StorageRouter is the subset of *storage.Router the run loop drives.
type StorageRouter interface {
	Update()
	WriteAuto(prefix, ext string, data []byte) (name string, n int, err error)
}

// RunLoop is the cooperative scheduler.
type RunLoop struct {
	receiver Receiver
	router   StorageRouter
	observer Observer
	extra    []Component

	namePrefix, nameExt string

	now     func() time.Time
	freeMem func() uint32

	lowMemWatermark uint32

	lastStatus   time.Time
	lastOverflow time.Time
	lastMemCheck time.Time

	errorStreak uint32
	degraded    bool

	chunk [chunkSize]byte
}

// New constructs a RunLoop. namePrefix/nameExt feed the router's
// write_auto synthesized file names for captured chunks.
func New(receiver Receiver, router StorageRouter, observer Observer, namePrefix, nameExt string) *RunLoop {
	// lastStatus/lastOverflow/lastMemCheck are left at the zero Time so the
	// very first tick always emits all three periodic observations.
	return &RunLoop{
		receiver:        receiver,
		router:          router,
		observer:        observer,
		namePrefix:      namePrefix,
		nameExt:         nameExt,
		now:             time.Now,
		freeMem:         func() uint32 { return 0 },
		lowMemWatermark: 512,
	}
}

// SetClockHook overrides the now() primitive; used by tests.
func (r *RunLoop) SetClockHook(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// SetFreeMemHook wires a function reporting current free bytes, and the
// low-water mark below which a low-memory observation is raised.
func (r *RunLoop) SetFreeMemHook(fn func() uint32, lowWatermark uint32) {
	if fn != nil {
		r.freeMem = fn
	}
	r.lowMemWatermark = lowWatermark
}

// AddComponent registers an extra per-tick advance step.
func (r *RunLoop) AddComponent(c Component) {
	r.extra = append(r.extra, c)
}

// IsDegraded reports whether the loop has crossed the persistent-error
// threshold and demoted into error-indication mode.
func (r *RunLoop) IsDegraded() bool { return r.degraded }

// Tick runs exactly one iteration of the six-step schedule in spec.md
// §4.8. It never blocks.
func (r *RunLoop) Tick() {
	r.advanceComponents()
	r.drainReceiver()

	now := r.now()

	if now.Sub(r.lastStatus) >= statusInterval {
		r.lastStatus = now
		r.emitStatus()
	}

	if now.Sub(r.lastOverflow) >= overflowInterval {
		r.lastOverflow = now
		r.checkOverflow()
	}

	if now.Sub(r.lastMemCheck) >= memCheckInterval {
		r.lastMemCheck = now
		r.checkMemory()
	}
}

// advanceComponents runs step 1: let every component advance, logging any
// failure and tracking a consecutive-error streak toward error-indication
// mode. The receiver and router have no failure mode of their own at the
// advance step (their failures surface per-operation, at write time), so
// only registered extra components can fail here.
func (r *RunLoop) advanceComponents() {
	r.receiver.Update()
	r.router.Update()

	anyErr := false
	for _, c := range r.extra {
		if err := c(); err != nil {
			anyErr = true
			if e, ok := err.(*errs.Error); ok {
				r.observer.OnError(e.Kind, e.Detail)
			} else {
				r.observer.OnError(errs.IoError, err.Error())
			}
		}
	}

	if anyErr {
		r.errorStreak++
		if r.errorStreak >= errorThreshold {
			r.degraded = true
		}
	} else {
		r.errorStreak = 0
	}
}

// drainReceiver runs step 2: pop up to one chunk and route it.
func (r *RunLoop) drainReceiver() {
	if r.receiver.Available() <= 0 {
		return
	}

	n := r.receiver.Read(r.chunk[:], len(r.chunk))
	if n == 0 {
		return
	}

	name, _, err := r.router.WriteAuto(r.namePrefix, r.nameExt, r.chunk[:n])
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			r.observer.OnError(e.Kind, e.Detail)
		} else {
			r.observer.OnError(errs.IoError, err.Error())
		}
		return
	}

	r.observer.OnFileCaptured(name, n)
}

func (r *RunLoop) emitStatus() {
	stats := r.receiver.Stats()
	snap := Snapshot{
		BytesTotal:   stats.BytesTotal,
		Overflows:    stats.Overflows,
		UtilPct:      r.receiver.UtilizationPct(),
		FreeMemBytes: r.freeMem(),
	}
	r.observer.OnStatusTick(snap)
}

// checkOverflow runs step 4: surface a latched overflow once, then clear
// it so the same event is not reported again.
func (r *RunLoop) checkOverflow() {
	if !r.receiver.HadOverflow() {
		return
	}
	r.receiver.ClearOverflow()
	r.observer.OnError(errs.NoSpace, "parallel receiver queue overflowed")
}

// checkMemory runs step 5: sample free memory and raise a low-memory
// observation below the configured watermark.
func (r *RunLoop) checkMemory() {
	free := r.freeMem()
	if free < r.lowMemWatermark {
		r.observer.OnError(errs.NoSpace, "free memory below low-water mark")
	}
}
