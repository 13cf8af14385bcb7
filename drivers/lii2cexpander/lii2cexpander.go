// Package lii2cexpander drives the Leopard Imaging I²C expander that fans
// one I²C bus out to up to four camera connectors. Sensors behind the
// expander share the same device address; the expander output selected
// before a transaction decides which one answers.
package lii2cexpander

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// Address is the expander's fixed I²C address.
const Address = 0b0111_0000

// Output is a bitmask of enabled expander outputs.
type Output uint8

const (
	OutputNone Output = 0b0000
	Output1    Output = 0b0001 // first camera
	Output2    Output = 0b0010 // second camera
	Output3    Output = 0b0100
	Output4    Output = 0b1000
)

func (o Output) String() string {
	switch o {
	case OutputNone:
		return "none"
	case Output1:
		return "output1"
	case Output2:
		return "output2"
	case Output3:
		return "output3"
	case Output4:
		return "output4"
	default:
		return fmt.Sprintf("outputs(0b%04b)", uint8(o))
	}
}

// ForInstance maps a camera instance index on a shared link to its output.
// Instance 1 is wired to the second output; everything else uses the first.
func ForInstance(instance int) Output {
	if instance == 1 {
		return Output2
	}
	return Output1
}

// Device is a handle to the expander on a bus. It is cheap to construct and
// holds no state, so it can be created inside a bus job.
type Device struct {
	bus drivers.I2C
	buf [1]byte
}

// New binds an expander handle to bus.
func New(bus drivers.I2C) Device {
	return Device{bus: bus}
}

// Configure enables the outputs in out and disables the rest.
// Selecting the already-active output is harmless.
func (d *Device) Configure(out Output) error {
	d.buf[0] = byte(out)
	return d.bus.Tx(Address, d.buf[:], nil)
}
