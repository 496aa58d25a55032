// Package board is the composition root: it constructs every singleton
// once at startup and wires borrowed references between them (spec.md §9:
// "replace global access to components with an explicit composition
// root"). There is no service locator and no global component registry —
// Board is the one place that holds all of them.
package board

import "github.com/scopebridge/firmware/internal/logline"

// UART is the minimal byte-sink the console writes to. The board's
// concrete UART driver (platform-specific, behind a build tag) satisfies
// this.
type UART interface {
	Tx(c byte)
}

// Console is the Printk-style console (SPEC_FULL.md §1.1): one byte at a
// time to whichever UART the board selects, no buffering, no logging
// library.
type Console struct {
	uart UART
	line [128]byte
}

// NewConsole wires a console to the given UART.
func NewConsole(uart UART) *Console {
	return &Console{uart: uart}
}

// Printk writes a single byte to the console UART.
func (c *Console) Printk(b byte) {
	c.uart.Tx(b)
}

func (c *Console) writeLine(n int) {
	for i := 0; i < n; i++ {
		c.Printk(c.line[i])
	}
}

// Status renders and emits a status snapshot line.
func (c *Console) Status(bytesTotal, overflows uint32, utilPct uint8, freeMem uint32) {
	c.writeLine(logline.EmitStatus(c.line[:], bytesTotal, overflows, utilPct, freeMem))
}

// Captured renders and emits a file-captured line.
func (c *Console) Captured(name string, n int) {
	c.writeLine(logline.EmitCaptured(c.line[:], name, n))
}

// Err renders and emits an error line.
func (c *Console) Err(kind, detail string) {
	c.writeLine(logline.EmitError(c.line[:], kind, detail))
}
