// Package irq provides the two primitives every other package needs to
// cross the interrupt boundary safely: global enable/disable (asserted once
// by the composition root after every static singleton is constructed) and
// a short critical section that masks only the strobe interrupt for a
// bounded number of instructions.
//
// Grounded on the teacher's arm/irq.go, which declares EnableInterrupts /
// DisableInterrupts as thin wrappers over assembly stubs
// (irq_enable/irq_disable defined in irq.s) rather than anything from the Go
// standard library — there is no portable Go API for an 8-bit core's global
// interrupt flag, so the real primitives are installed at run time through
// SetHooks; this package itself carries only no-op defaults.
package irq

// enableFn/disableFn/maskStrobeFn/unmaskStrobeFn default to no-ops and are
// replaced through SetHooks (the role the teacher's irq_enable/irq_disable
// asm stubs play). Until SetHooks is called, Enable, Disable and
// WithStrobeMasked do nothing but run fn.
var (
	enableFn       = func() {}
	disableFn      = func() {}
	maskStrobeFn   = func() {}
	unmaskStrobeFn = func() {}
)

// SetHooks installs the platform primitives; a nil argument leaves that
// primitive unchanged. Call it once, before Enable, with the real hardware
// hooks. board.New does not call it.
func SetHooks(enable, disable, maskStrobe, unmaskStrobe func()) {
	if enable != nil {
		enableFn = enable
	}
	if disable != nil {
		disableFn = disable
	}
	if maskStrobe != nil {
		maskStrobeFn = maskStrobe
	}
	if unmaskStrobe != nil {
		unmaskStrobeFn = unmaskStrobe
	}
}

// Enable unmasks global interrupts. Call exactly once, after every static
// singleton the ISR touches has been constructed.
func Enable() {
	enableFn()
}

// Disable masks global interrupts.
func Disable() {
	disableFn()
}

// WithStrobeMasked runs fn with the parallel port strobe interrupt masked,
// then unmasks it unconditionally. The mask window must stay on the order
// of a few microseconds: a concurrent byte is at most delayed (the peer
// stalls briefly on BUSY), never dropped, but only if fn is kept tiny — it
// exists to let the run loop snapshot multi-byte statistics fields without
// tearing, not to protect long-running work.
func WithStrobeMasked(fn func()) {
	maskStrobeFn()
	defer unmaskStrobeFn()
	fn()
}
