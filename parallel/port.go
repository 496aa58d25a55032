package parallel

import "github.com/scopebridge/firmware/internal/mmio"

// reg8 is the subset of mmio.Reg8's method surface Port needs. It exists so
// tests can substitute an in-memory stand-in instead of pointing unsafe.Pointer
// at a real register address; the platform build always passes mmio.Reg8
// values, which satisfy this interface with zero extra indirection cost once
// inlined.
type reg8 interface {
	Get() uint8
	Set(uint8)
	GetBit(pos int) bool
	SetBit(pos int)
	ClearBit(pos int)
	SetBitTo(pos int, v bool)
}

var _ reg8 = mmio.Reg8{}

// Port groups the three registers an 8-bit microcontroller exposes per
// GPIO bank: the output-drive register, the data-direction register, and
// the input-read register. This is the classic AVR PORTx/DDRx/PINx triad,
// modeled the way the teacher's soc/nxp/gpio.GPIO models an NXP bank
// (Base + one data register + one direction register) but split into the
// three distinct registers an 8-bit part actually has, since on these parts
// the output and input values do not share one register.
type Port struct {
	Out reg8
	Dir reg8
	In  reg8
}

// AsOutput8 configures every bit of the port to drive, for the data bus
// self-test loopback (the bus is otherwise an input while a peripheral is
// capturing).
func (p *Port) AsOutput8() { p.Dir.Set(0xFF) }

// AsInput8 configures every bit of the port to sense.
func (p *Port) AsInput8() { p.Dir.Set(0x00) }

// Write8 drives the full 8-bit value. Only meaningful once AsOutput8 has
// been called.
func (p *Port) Write8(v uint8) { p.Out.Set(v) }

// Read8 returns the full 8-bit sensed value.
func (p *Port) Read8() uint8 { return p.In.Get() }

// Line is a single pin on a Port, addressed by bit position. It plays the
// same role as the teacher's gpio.Pin.
type Line struct {
	port *Port
	bit  int
}

// NewLine returns the Line for bit on port.
func NewLine(port *Port, bit int) Line {
	return Line{port: port, bit: bit}
}

// AsOutput configures the line to drive.
func (l Line) AsOutput() { l.port.Dir.SetBit(l.bit) }

// AsInput configures the line to sense.
func (l Line) AsInput() { l.port.Dir.ClearBit(l.bit) }

// Set drives the line high or low. Only meaningful once AsOutput has been
// called.
func (l Line) Set(high bool) { l.port.Out.SetBitTo(l.bit, high) }

// Read returns the sensed level. Meaningful in either direction: on most
// 8-bit parts the input register reflects the output register's value
// when configured as output too, which is exactly what the self-test
// loopback relies on.
func (l Line) Read() bool { return l.port.In.GetBit(l.bit) }
