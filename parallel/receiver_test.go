package parallel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scopebridge/firmware/byteq"
)

// fakeBank is an in-memory stand-in for a microcontroller GPIO bank,
// letting tests drive Port/Line without real hardware registers.
type fakeBank struct {
	out, dir, in uint8
}

func newFakePort(b *fakeBank) *Port {
	return &Port{
		Out: fakeReg{b: b, sel: selOut},
		Dir: fakeReg{b: b, sel: selDir},
		In:  fakeReg{b: b, sel: selIn},
	}
}

type regSel int

const (
	selOut regSel = iota
	selDir
	selIn
)

// fakeReg adapts fakeBank to the mmio.Reg8 method surface without going
// through the unsafe-pointer-backed type, since the test environment has
// no real register address to point at. It only needs to implement the
// subset Port/Line actually call.
type fakeReg struct {
	b   *fakeBank
	sel regSel
}

func (f fakeReg) get() *uint8 {
	switch f.sel {
	case selOut:
		return &f.b.out
	case selDir:
		return &f.b.dir
	default:
		return &f.b.in
	}
}

func (f fakeReg) Get() uint8 { return *f.get() }
func (f fakeReg) Set(v uint8) {
	*f.get() = v
	if f.sel == selOut {
		// loopback: whatever is driven out is what a read-back observes,
		// mirroring real hardware where PINx reflects PORTx on an output pin.
		f.b.in = v
	}
}
func (f fakeReg) GetBit(pos int) bool   { return f.Get()&(1<<uint(pos)) != 0 }
func (f fakeReg) SetBit(pos int)        { f.Set(f.Get() | 1<<uint(pos)) }
func (f fakeReg) ClearBit(pos int)      { f.Set(f.Get() &^ (1 << uint(pos))) }
func (f fakeReg) SetBitTo(pos int, v bool) {
	if v {
		f.SetBit(pos)
	} else {
		f.ClearBit(pos)
	}
}

func newTestPins() Pins {
	dataBank := &fakeBank{}
	busyBank := &fakeBank{}
	ackBank := &fakeBank{}
	errBank := &fakeBank{}
	selBank := &fakeBank{}
	poBank := &fakeBank{}
	afBank := &fakeBank{}
	initBank := &fakeBank{}
	siBank := &fakeBank{}

	return Pins{
		Data:     newFakePort(dataBank),
		Busy:     NewLine(newFakePort(busyBank), 0),
		Ack:      NewLine(newFakePort(ackBank), 0),
		Error:    NewLine(newFakePort(errBank), 0),
		Select:   NewLine(newFakePort(selBank), 0),
		PaperOut: NewLine(newFakePort(poBank), 0),
		AutoFeed: NewLine(newFakePort(afBank), 0),
		Init:     NewLine(newFakePort(initBank), 0),
		SelectIn: NewLine(newFakePort(siBank), 0),
	}
}

func noSleep(time.Duration) {}

func TestHandleInterruptDrainsInOrder(t *testing.T) {
	pins := newTestPins()
	q := byteq.New(16)
	r := New(pins, q)
	r.SetClockHooks(noSleep, nil)
	r.Enable(true)

	msg := []byte("Hi\n")
	for _, b := range msg {
		pins.Data.Write8(b)
		r.HandleInterrupt()
	}

	require.Equal(t, len(msg), r.Available())
	out := make([]byte, len(msg))
	n := r.Read(out, len(out))
	require.Equal(t, len(msg), n)
	require.Equal(t, msg, out)

	stats := r.Stats()
	require.Equal(t, uint32(len(msg)), stats.BytesTotal)
	require.Equal(t, uint32(len(msg)), stats.InterruptsTotal)
	require.Equal(t, uint32(0), stats.Overflows)
}

func TestOverflowStillCompletesEveryHandshake(t *testing.T) {
	pins := newTestPins()
	q := byteq.New(16)
	r := New(pins, q)
	r.SetClockHooks(noSleep, nil)
	r.Enable(true)

	for i := 0; i < 20; i++ {
		pins.Data.Write8(byte(i))
		r.HandleInterrupt()
	}

	stats := r.Stats()
	require.Equal(t, uint32(20), stats.InterruptsTotal)
	require.Equal(t, uint32(4), stats.Overflows)
	require.Equal(t, uint32(16), stats.BytesTotal)
	require.True(t, r.HadOverflow())

	r.ClearOverflow()
	require.False(t, r.HadOverflow())
}

func TestDisabledDiscardsButStillHandshakes(t *testing.T) {
	pins := newTestPins()
	q := byteq.New(4)
	r := New(pins, q)
	r.SetClockHooks(noSleep, nil)
	r.Enable(false)

	pins.Data.Write8(0x42)
	r.HandleInterrupt()

	require.Equal(t, 0, r.Available())
	require.Equal(t, uint32(1), r.Stats().InterruptsTotal)
}

func TestSelfTestSignalsLoopback(t *testing.T) {
	pins := newTestPins()
	q := byteq.New(4)
	r := New(pins, q)
	r.SetClockHooks(noSleep, nil)

	require.True(t, r.SelfTestSignals())
}

func TestFlowControlHoldsBusyAboveWatermark(t *testing.T) {
	pins := newTestPins()
	q := byteq.New(4)
	r := New(pins, q)
	r.SetClockHooks(noSleep, nil)
	r.Enable(true)
	r.SetFlowControlWatermark(2)

	pins.Data.Write8(1)
	r.HandleInterrupt()
	pins.Data.Write8(2)
	r.HandleInterrupt()

	require.True(t, pins.Busy.Read(), "busy should stay asserted at/above watermark")

	r.Read(make([]byte, 2), 2)
	r.Update()
	require.False(t, pins.Busy.Read(), "busy should release once drained below watermark")
}
