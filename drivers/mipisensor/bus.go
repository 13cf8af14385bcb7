package mipisensor

import (
	"encoding/binary"
	"time"

	"mipicam-go/drivers/lii2cexpander"
	"mipicam-go/internal/i2cbus"

	"tinygo.org/x/drivers"
)

// Bus runs jobs with exclusive access to one physical I²C bus.
// *i2cbus.Owner is the production implementation.
type Bus interface {
	Do(timeout time.Duration, fn i2cbus.Job) error
}

// Wire format: 16-bit big-endian register address, then one value byte
// for writes. Reads expect exactly one reply byte.

func encodeRegister(reg uint16) []byte {
	w := make([]byte, 2)
	binary.BigEndian.PutUint16(w, reg)
	return w
}

func encodeWrite(reg uint16, value uint8) []byte {
	w := make([]byte, 3)
	binary.BigEndian.PutUint16(w, reg)
	w[2] = value
	return w
}

// readJob selects out, then reads one register. The result lands in *dst
// only when the job completes.
func readJob(out lii2cexpander.Output, addr, reg uint16, dst *uint8) i2cbus.Job {
	return func(bus drivers.I2C) error {
		exp := lii2cexpander.New(bus)
		if err := exp.Configure(out); err != nil {
			return err
		}
		r := make([]byte, 1)
		if err := bus.Tx(addr, encodeRegister(reg), r); err != nil {
			return err
		}
		*dst = r[0]
		return nil
	}
}

// writeJob selects out, then writes one register.
func writeJob(out lii2cexpander.Output, addr, reg uint16, value uint8) i2cbus.Job {
	return func(bus drivers.I2C) error {
		exp := lii2cexpander.New(bus)
		if err := exp.Configure(out); err != nil {
			return err
		}
		return bus.Tx(addr, encodeWrite(reg, value), nil)
	}
}

// directWriter writes registers on the base bus without expander
// selection. Used for link-level devices such as the clock generator.
type directWriter struct {
	bus     Bus
	timeout time.Duration
}

func (d directWriter) WriteRegister(addr, reg uint16, value uint8) error {
	return d.bus.Do(d.timeout, func(bus drivers.I2C) error {
		return bus.Tx(addr, encodeWrite(reg, value), nil)
	})
}
