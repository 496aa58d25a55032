// Package spibus defines the minimal synchronous SPI transactor this repo's
// NOR flash driver needs. spec.md assumes a SPI NOR chip is wired up but
// does not name the transport interface; this is grounded on the retrieved
// pack's tve-devices/sx1231 `devices.SPI` interface and TinyGo's
// `machine.SPI.Tx(w, r []byte) error` shape (other_examples'
// machine_rp2_spi.go), both of which reduce SPI to one synchronous
// full-duplex exchange plus separate chip-select control.
package spibus

// Bus is a synchronous, blocking SPI transactor. Tx writes len(tx) bytes
// while simultaneously reading into rx; either buffer may be nil (write-only
// or read-only), but when both are non-nil they must be the same length.
type Bus interface {
	Tx(tx, rx []byte) error
}

// ChipSelect drives (or senses) the NOR flash's chip-select line. It is
// kept out of Bus because the bus itself may be shared with other
// peripherals, each owning its own select line — exactly the situation
// spec.md's three pluggable backends create (SD and NOR could, on some
// boards, share one bus).
type ChipSelect interface {
	Select(asserted bool)
}
