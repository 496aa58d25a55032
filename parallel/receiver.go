// Package parallel implements the IEEE-1284 Standard Parallel Port (SPP)
// ingress path: a hard real-time interrupt handler that latches one byte
// per nSTROBE falling edge, drives the BUSY/nACK handshake, and hands the
// byte to a byteq.Queue for the run loop to drain.
package parallel

import (
	"sync/atomic"
	"time"

	"github.com/scopebridge/firmware/byteq"
)

// Timing constants from the IEEE-1284 SPP contract this driver implements.
const (
	// AckPulseWidth is the mandatory low-pulse duration of nACK.
	AckPulseWidth = 20 * time.Microsecond
	// SettleDelay is the hardware settle time budgeted between nSTROBE
	// falling and the data bus being read.
	SettleDelay = 5 * time.Microsecond
)

// Pins wires a Receiver to the microcontroller's GPIO banks. Strobe is read
// through the edge-triggered interrupt mechanism (the platform's vector
// table calls Receiver.HandleInterrupt on nSTROBE's falling edge); Data is
// the 8-bit bus register; the rest are single lines.
type Pins struct {
	Data *Port // D0..D7, input while capturing

	Busy Line // output, asserted high while accepting a byte
	Ack  Line // output, active-low pulse on acceptance

	// Fixed-output lines, driven once at Init and otherwise untouched.
	Error    Line // nERROR, held high (no error)
	Select   Line // SELECT, held high
	PaperOut Line // PAPER_OUT, held low

	// Monitored-but-unused-in-SPP-mode inputs, read only by self-test.
	AutoFeed Line // nAUTOFEED
	Init     Line // nINIT
	SelectIn Line // nSELECT_IN
}

// Stats mirrors spec.md's ReceiverStats: counters updated only by the ISR,
// read by the run loop via atomic snapshots.
type Stats struct {
	BytesTotal      uint32
	Overflows       uint32
	InterruptsTotal uint32
	IsrMaxUs        uint16
	IsrEwmaUs       uint16
}

// Receiver implements the SPP ingress state machine.
type Receiver struct {
	pins  Pins
	queue *byteq.Queue

	enabled atomic.Bool

	bytesTotal      atomic.Uint32
	overflows       atomic.Uint32
	interruptsTotal atomic.Uint32
	isrMaxNs        atomic.Uint32
	isrEwmaNs       atomic.Uint32

	flowWatermark atomic.Int32 // 0 = disabled
	busyHeld      atomic.Bool

	// sleep/now are indirected so tests can run the state machine without
	// real microsecond-scale waits; the platform build wires these to
	// time.Sleep / time.Now (or a cycle-counter equivalent) directly.
	sleep func(time.Duration)
	now   func() time.Time
}

// New constructs a Receiver over the given pins and queue. Output lines are
// driven to their fixed idle levels and the queue is cleared.
func New(pins Pins, queue *byteq.Queue) *Receiver {
	r := &Receiver{
		pins:  pins,
		queue: queue,
		sleep: time.Sleep,
		now:   time.Now,
	}

	pins.Busy.AsOutput()
	pins.Ack.AsOutput()
	pins.Error.AsOutput()
	pins.Select.AsOutput()
	pins.PaperOut.AsOutput()
	pins.Data.AsInput8()
	pins.AutoFeed.AsInput()
	pins.Init.AsInput()
	pins.SelectIn.AsInput()

	pins.Busy.Set(false)
	pins.Ack.Set(true) // idle high (active-low line)
	pins.Error.Set(true)
	pins.Select.Set(true)
	pins.PaperOut.Set(false)

	return r
}

// SetClockHooks overrides the sleep/now primitives; used by tests.
func (r *Receiver) SetClockHooks(sleep func(time.Duration), now func() time.Time) {
	if sleep != nil {
		r.sleep = sleep
	}
	if now != nil {
		r.now = now
	}
}

// Enable starts (or stops) byte capture. Disabling does not change pin
// idle levels; a disabled Receiver still completes every handshake so the
// peer never stalls on BUSY, it simply discards the byte.
func (r *Receiver) Enable(on bool) {
	r.enabled.Store(on)
}

// IsEnabled reports the current capture state.
func (r *Receiver) IsEnabled() bool {
	return r.enabled.Load()
}

// HandleInterrupt is the nSTROBE falling-edge handler. It must be wired
// directly to the platform's interrupt vector; it performs no suspension
// point beyond the two mandated hardware delays (SettleDelay, AckPulseWidth)
// and is the only producer-side entry point into the queue.
func (r *Receiver) HandleInterrupt() {
	start := r.now()

	r.pins.Busy.Set(true)

	r.sleep(SettleDelay)
	b := r.pins.Data.Read8()

	if r.enabled.Load() {
		if r.queue.TryPush(b) {
			r.bytesTotal.Add(1)
		} else {
			r.overflows.Add(1)
		}
	}

	r.pins.Ack.Set(false)
	r.sleep(AckPulseWidth)
	r.pins.Ack.Set(true)

	if !r.shouldHoldBusy() {
		r.pins.Busy.Set(false)
		r.busyHeld.Store(false)
	} else {
		r.busyHeld.Store(true)
	}

	r.interruptsTotal.Add(1)
	r.recordIsrDuration(r.now().Sub(start) - SettleDelay - AckPulseWidth)
}

// shouldHoldBusy implements the optional BUSY-held flow-control mode: once
// the queue reaches the configured watermark, BUSY stays asserted after the
// handshake instead of releasing, until Update() observes the queue has
// drained back below the watermark. Disabled (returns false) unless
// SetFlowControlWatermark has been called with a positive value.
func (r *Receiver) shouldHoldBusy() bool {
	wm := r.flowWatermark.Load()
	if wm <= 0 {
		return false
	}
	return r.queue.Len() >= int(wm)
}

func (r *Receiver) recordIsrDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	us := uint32(d / time.Microsecond)

	for {
		cur := r.isrMaxNs.Load()
		if us <= cur {
			break
		}
		if r.isrMaxNs.CompareAndSwap(cur, us) {
			break
		}
	}

	// exponentially weighted moving average, weight 1/8, integer math only.
	for {
		cur := r.isrEwmaNs.Load()
		next := uint32(int64(cur) + (int64(us)-int64(cur))/8)
		if r.isrEwmaNs.CompareAndSwap(cur, next) {
			break
		}
	}
}

// SetFlowControlWatermark enables (n > 0) or disables (n <= 0) holding BUSY
// continuously while the queue is at or above n bytes. See spec.md §9's
// open question on hardware flow control; disabled by default.
func (r *Receiver) SetFlowControlWatermark(n int) {
	r.flowWatermark.Store(int32(n))
}

// Update is called once per run-loop tick. It releases a held BUSY line
// once the queue has drained back below the flow-control watermark.
func (r *Receiver) Update() {
	if !r.busyHeld.Load() {
		return
	}
	wm := r.flowWatermark.Load()
	if wm <= 0 || r.queue.Len() < int(wm) {
		r.pins.Busy.Set(false)
		r.busyHeld.Store(false)
	}
}

// Available returns the number of bytes currently queued.
func (r *Receiver) Available() int {
	return r.queue.Len()
}

// Read pops up to max bytes into dst, returning the number popped.
func (r *Receiver) Read(dst []byte, max int) int {
	return r.queue.Drain(dst, max)
}

// Peek returns the next byte without consuming it, if any.
func (r *Receiver) Peek() (byte, bool) {
	return r.queue.Peek()
}

// Clear empties the queue.
func (r *Receiver) Clear() {
	r.queue.Clear()
}

// HadOverflow reports whether a byte has been dropped since ClearOverflow.
func (r *Receiver) HadOverflow() bool {
	return r.queue.Overflowed()
}

// ClearOverflow resets the overflow flag.
func (r *Receiver) ClearOverflow() {
	r.queue.ClearOverflow()
}

// UtilizationPct returns the queue's current fill level as a percentage
// (0-100), for the run loop's periodic status snapshot.
func (r *Receiver) UtilizationPct() uint8 {
	return uint8(r.queue.UtilizationPct())
}

// Stats returns a consistent snapshot of the receiver's counters. The
// atomic widths involved do not require masking the strobe interrupt on a
// target with single-instruction 32-bit atomic loads; a target without
// that guarantee should wrap this call in irq.WithStrobeMasked.
func (r *Receiver) Stats() Stats {
	return Stats{
		BytesTotal:      r.bytesTotal.Load(),
		Overflows:       r.overflows.Load(),
		InterruptsTotal: r.interruptsTotal.Load(),
		IsrMaxUs:        uint16(r.isrMaxNs.Load()),
		IsrEwmaUs:       uint16(r.isrEwmaNs.Load()),
	}
}
