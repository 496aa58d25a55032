// Package byteq implements a fixed-capacity single-producer/single-consumer
// byte ring buffer.
//
// The producer (the parallel port interrupt handler) only ever touches its
// own head index; the consumer (the run loop) only ever touches its own tail
// index. Neither side allocates, blocks, or takes a lock: the shared count
// is the only field either side writes AND reads, so it is kept behind
// atomic loads/stores sized to fit in one bus transaction on the target,
// giving a concurrent reader a consistent (head, tail, count) view without
// disabling interrupts.
package byteq

import "sync/atomic"

// Queue is a fixed-capacity SPSC byte ring. The zero value is not usable;
// construct with New.
type Queue struct {
	buf  []byte
	cap  uint32
	head uint32 // producer-owned
	tail uint32 // consumer-owned

	count     atomic.Uint32
	overflow  atomic.Bool
}

// New constructs a Queue with the given capacity. Capacity is fixed for the
// lifetime of the Queue; a power of two is recommended so the index wrap can
// use a mask instead of a modulo, but any positive capacity works.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("byteq: capacity must be positive")
	}
	return &Queue{
		buf: make([]byte, capacity),
		cap: uint32(capacity),
	}
}

// TryPush appends b at head and returns true, or latches the overflow flag
// and returns false if the queue is full. Producer-only: call this only
// from the interrupt handler (or whichever single role owns head).
func (q *Queue) TryPush(b byte) bool {
	if q.count.Load() >= q.cap {
		q.overflow.Store(true)
		return false
	}

	q.buf[q.head] = b
	q.head++
	if q.head == q.cap {
		q.head = 0
	}
	q.count.Add(1)

	return true
}

// TryPop removes and returns the byte at tail. Consumer-only.
func (q *Queue) TryPop() (byte, bool) {
	if q.count.Load() == 0 {
		return 0, false
	}

	b := q.buf[q.tail]
	q.tail++
	if q.tail == q.cap {
		q.tail = 0
	}
	q.count.Add(^uint32(0)) // count--

	return b, true
}

// Peek returns the byte at tail without removing it. Consumer-only.
func (q *Queue) Peek() (byte, bool) {
	if q.count.Load() == 0 {
		return 0, false
	}
	return q.buf[q.tail], true
}

// Drain pops up to max bytes into dst, returning the number popped.
// Consumer-only.
func (q *Queue) Drain(dst []byte, max int) int {
	if max > len(dst) {
		max = len(dst)
	}

	n := 0
	for n < max {
		b, ok := q.TryPop()
		if !ok {
			break
		}
		dst[n] = b
		n++
	}

	return n
}

// Len returns the number of bytes currently queued.
func (q *Queue) Len() int {
	return int(q.count.Load())
}

// Capacity returns the fixed queue capacity.
func (q *Queue) Capacity() int {
	return int(q.cap)
}

// UtilizationPct returns the current fill level as a percentage (0-100).
func (q *Queue) UtilizationPct() int {
	return int(q.count.Load()) * 100 / int(q.cap)
}

// IsFull reports whether the queue currently holds cap bytes.
func (q *Queue) IsFull() bool {
	return q.count.Load() >= q.cap
}

// Overflowed reports whether a push has been dropped since the last
// ClearOverflow.
func (q *Queue) Overflowed() bool {
	return q.overflow.Load()
}

// ClearOverflow resets the overflow flag.
func (q *Queue) ClearOverflow() {
	q.overflow.Store(false)
}

// Clear empties the queue and resets the overflow flag. Not safe to call
// concurrently with TryPush; intended for use at reset time before the
// producer is enabled.
func (q *Queue) Clear() {
	q.head = 0
	q.tail = 0
	q.count.Store(0)
	q.overflow.Store(false)
}
