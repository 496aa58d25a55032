package parallel

import "time"

// dataLoopbackPatterns exercise every bit combination class (all-low,
// all-high, alternating) on the shared data bus during self-test.
var dataLoopbackPatterns = [...]uint8{0x00, 0xFF, 0xAA, 0x55}

// SelfTestSignals exercises every output driver (toggling and reading back
// through the input register) and, since no peripheral is assumed present,
// exercises the data bus as a write-then-read loopback by temporarily
// switching it to output. Idle output levels are restored before return
// regardless of outcome.
func (r *Receiver) SelfTestSignals() bool {
	ok := true

	toggle := func(l Line) {
		for _, v := range [...]bool{true, false, true} {
			l.Set(v)
			if l.Read() != v {
				ok = false
			}
		}
	}

	toggle(r.pins.Busy)
	toggle(r.pins.Ack)
	toggle(r.pins.Error)
	toggle(r.pins.Select)
	toggle(r.pins.PaperOut)

	r.pins.Data.AsOutput8()
	for _, pattern := range dataLoopbackPatterns {
		r.pins.Data.Write8(pattern)
		if r.pins.Data.Read8() != pattern {
			ok = false
		}
	}
	r.pins.Data.AsInput8()

	// restore idle levels
	r.pins.Busy.Set(false)
	r.pins.Ack.Set(true)
	r.pins.Error.Set(true)
	r.pins.Select.Set(true)
	r.pins.PaperOut.Set(false)

	return ok
}

// TestCapture sleeps for duration and returns the number of interrupts
// observed during the interval, for bench/diagnostic use.
func (r *Receiver) TestCapture(duration time.Duration) uint32 {
	start := r.interruptsTotal.Load()
	r.sleep(duration)
	return r.interruptsTotal.Load() - start
}
