package board

import (
	"github.com/scopebridge/firmware/byteq"
	"github.com/scopebridge/firmware/flash"
	"github.com/scopebridge/firmware/hexstream"
	"github.com/scopebridge/firmware/irq"
	"github.com/scopebridge/firmware/parallel"
	"github.com/scopebridge/firmware/runloop"
	"github.com/scopebridge/firmware/sdcard"
	"github.com/scopebridge/firmware/spibus"
	"github.com/scopebridge/firmware/storage"
)

// queueCapacity is the ParallelReceiver's fixed SPSC queue depth. Sized to
// absorb one full IEEE-1284 burst between run-loop ticks on an 8 KiB-RAM
// target.
const queueCapacity = 256

// Board owns every long-lived component exactly once. There is no global
// registry: main constructs one Board and calls Run in a loop.
type Board struct {
	Console  *Console
	Receiver *parallel.Receiver
	Router   *storage.Router
	Loop     *runloop.RunLoop
}

// Deps are the platform-specific collaborators a concrete main wires up
// (behind a build tag, e.g. platform_avr.go's register banks) before
// calling New.
type Deps struct {
	UART UART

	ParallelPins parallel.Pins

	NorBus spibus.Bus
	NorCS  spibus.ChipSelect

	SdVolume sdcard.Volume
	SdLines  sdcard.DetectLines

	HexLink hexstream.Link
}

// New constructs every component once, wires the storage router's three
// backends, and returns a ready-to-run Board. Interrupts are left disabled
// until EnableInterrupts is called, once, after construction completes —
// the ISR must never observe a half-initialized Board.
func New(d Deps) *Board {
	console := NewConsole(d.UART)

	queue := byteq.New(queueCapacity)
	receiver := parallel.New(d.ParallelPins, queue)

	norDrv := flash.New(d.NorBus, d.NorCS)
	norFS := flash.NewFlatFS(norDrv)
	nor := storage.NewNorBackend(norFS)

	var sd storage.Backend
	if d.SdVolume != nil && d.SdLines != nil {
		sd = sdcard.New(d.SdVolume, d.SdLines)
	}

	var hex storage.Backend
	if d.HexLink != nil {
		hex = hexstream.New(d.HexLink)
	}

	router := storage.NewRouter(sd, nor, hex)
	router.Update()

	observer := NewConsoleObserver(console)
	loop := runloop.New(receiver, router, observer, "cap", ".bin")

	return &Board{
		Console:  console,
		Receiver: receiver,
		Router:   router,
		Loop:     loop,
	}
}

// EnableInterrupts enables the parallel strobe interrupt. Call this
// exactly once, after New returns and before the run loop starts ticking.
func (b *Board) EnableInterrupts() {
	irq.Enable()
	b.Receiver.Enable(true)
}

// Run ticks the cooperative loop forever. It never returns.
func (b *Board) Run() {
	for {
		b.Loop.Tick()
	}
}
