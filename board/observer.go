package board

import (
	"github.com/scopebridge/firmware/errs"
	"github.com/scopebridge/firmware/runloop"
)

// ConsoleObserver adapts Console to runloop.Observer.
type ConsoleObserver struct {
	console *Console
}

// NewConsoleObserver wires a run loop observer to the given console.
func NewConsoleObserver(console *Console) *ConsoleObserver {
	return &ConsoleObserver{console: console}
}

func (o *ConsoleObserver) OnFileCaptured(name string, bytes int) {
	o.console.Captured(name, bytes)
}

func (o *ConsoleObserver) OnError(kind errs.Kind, detail string) {
	o.console.Err(kind.String(), detail)
}

func (o *ConsoleObserver) OnStatusTick(snap runloop.Snapshot) {
	o.console.Status(snap.BytesTotal, snap.Overflows, snap.UtilPct, snap.FreeMemBytes)
}
