// Package ar0234 describes the SG2 AR0234C MIPI camera module: a 1920x1200
// global-shutter sensor streaming RAW12 over four lanes.
package ar0234

import (
	"mipicam-go/drivers/csi"
	"mipicam-go/drivers/mipisensor"
	"mipicam-go/drivers/regtable"
)

// Address is the sensor's I²C address behind the expander.
const Address = 0x18

// ChipVersion is the value of the chip version registers.
const ChipVersion uint16 = 0x0A56

// Registers. All registers take 8-bit values.
const (
	RegChipVersionHi = 0x3000
	RegChipVersionLo = 0x3001

	RegResetHi = 0x301A
	RegResetLo = 0x301B

	// Exposure, split over three bytes per shutter.
	RegExpSHS1MSB = 0xABEE
	RegExpSHS1MID = 0xABED
	RegExpSHS1LSB = 0xABEC
	RegExpSHS2MSB = 0x0012
	RegExpSHS2MID = 0x0011
	RegExpSHS2LSB = 0x0010

	// Analog gain.
	RegAnalogGainMSB = 0x3060
	RegAnalogGainLSB = 0x3061
)

// Modes.
const (
	Mode1920x1200RAW12x4Lane30 mipisensor.Mode = 0
)

const (
	waitMs      = 1
	waitStartMs = 200
)

func w(reg uint16, value uint8) regtable.Entry { return regtable.Write(Address, reg, value) }

var startTable = regtable.Table{
	w(RegResetHi, 0x20),
	w(RegResetLo, 0x5C),
	regtable.WaitMs(waitStartMs),
}

var stopTable = regtable.Table{
	w(RegResetHi, 0x20),
	w(RegResetLo, 0x58),
	regtable.WaitMs(waitMs),
}

var mode1920x1200RAW12 = regtable.Table{
		w(0x302A, 0x00),
		w(0x302B, 0x06),
		w(0x302C, 0x00),
		w(0x302D, 0x01),
		w(0x302E, 0x00),
		w(0x302F, 0x04),
		w(0x3030, 0x00),
		w(0x3031, 0x5A),
		w(0x3036, 0x00),
		w(0x3037, 0x0C),
		w(0x3038, 0x00),
		w(0x3039, 0x01),
		w(0x31B0, 0x00),
		w(0x31B1, 0x67),
		w(0x31B2, 0x00),
		w(0x31B3, 0x34),
		w(0x31B4, 0x22),
		w(0x31B5, 0x48),
		w(0x31B6, 0x32),
		w(0x31B7, 0x5A),
		w(0x31B8, 0x90),
		w(0x31B9, 0x4A),
		w(0x31BA, 0x02),
		w(0x31BB, 0x8B),
		w(0x31BC, 0x8E),
		w(0x31BD, 0x09),
		w(0x3354, 0x00),
		w(0x3355, 0x2C),
		w(0x301A, 0x20),
		w(0x301B, 0x58),
		w(0x31AE, 0x02),
		w(0x31AF, 0x04),
		w(0x3002, 0x00),
		w(0x3003, 0x08),
		w(0x3004, 0x00),
		w(0x3005, 0x08),
		w(0x3006, 0x04),
		w(0x3007, 0xB7),
		w(0x3008, 0x07),
		w(0x3009, 0x87),
		w(0x300A, 0x13),
		w(0x300B, 0x06),
		w(0x300C, 0x02),
		w(0x300D, 0x68),
		w(0x3012, 0x13),
		w(0x3013, 0x05),
		w(0x31AC, 0x0C),
		w(0x31AD, 0x0C),
		w(0x306E, 0x90),
		w(0x306F, 0x10),
		w(0x30A2, 0x00),
		w(0x30A3, 0x01),
		w(0x30A6, 0x00),
		w(0x30A7, 0x01),
		w(0x3082, 0x00),
		w(0x3083, 0x03),
		w(0x3040, 0xC0),
		w(0x3041, 0x00),
		w(0x3071, 0x00),
		w(0x31D0, 0x00),
		w(0x31D1, 0x00),
		w(0x301A, 0x20),
		w(0x301B, 0x5C),
		regtable.WaitMs(waitMs),
}

// Profile returns the AR0234 profile. Each call returns fresh maps.
func Profile() mipisensor.Profile {
	return mipisensor.Profile{
		Name:        "ar0234",
		Address:     Address,
		Version:     ChipVersion,
		ReadVersion: readChipVersion,
		Formats: map[mipisensor.Mode]csi.FrameFormat{
			Mode1920x1200RAW12x4Lane30: {Width: 1920, Height: 1200, Framerate: 30, PixelFormat: csi.RAW12},
		},
		ModeNames: map[mipisensor.Mode]string{
			Mode1920x1200RAW12x4Lane30: "1920x1200_raw12_4lane_30fps",
		},
		Tables: map[mipisensor.Mode]regtable.Table{
			Mode1920x1200RAW12x4Lane30: mode1920x1200RAW12,
		},
		Start:     startTable,
		Stop:      stopTable,
		MetaLines: 1,
		Emits:     []csi.PixelFormat{csi.RAW12},
	}
}

func readChipVersion(r mipisensor.RegisterReader) (uint16, error) {
	hi, err := r.ReadRegister(Address, RegChipVersionHi)
	if err != nil {
		return 0, err
	}
	lo, err := r.ReadRegister(Address, RegChipVersionLo)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// ExposureTable writes a 24-bit shutter value to both shutter banks.
func ExposureTable(lines uint32) regtable.Table {
	hi, mid, lo := uint8(lines>>16), uint8(lines>>8), uint8(lines)
	return regtable.Table{
		w(RegExpSHS1MSB, hi), w(RegExpSHS1MID, mid), w(RegExpSHS1LSB, lo),
		w(RegExpSHS2MSB, hi), w(RegExpSHS2MID, mid), w(RegExpSHS2LSB, lo),
	}
}

// AnalogGainTable writes a 16-bit analog gain code.
func AnalogGainTable(code uint16) regtable.Table {
	return regtable.Table{
		w(RegAnalogGainMSB, uint8(code>>8)),
		w(RegAnalogGainLSB, uint8(code)),
	}
}
