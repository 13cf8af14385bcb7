package mipisensor

import (
	"errors"
	"fmt"

	"mipicam-go/drivers/csi"
	"mipicam-go/drivers/regtable"
)

// Mode is a sensor mode index. Values are sensor specific and start at 0.
type Mode uint8

// ModeUnknown never resolves to a frame format.
const ModeUnknown Mode = 0xFF

func (m Mode) String() string {
	if m == ModeUnknown {
		return "unknown"
	}
	return fmt.Sprintf("mode%d", uint8(m))
}

// RegisterReader reads one 8-bit register from a device.
type RegisterReader interface {
	ReadRegister(addr, reg uint16) (uint8, error)
}

// Profile is the immutable description of one sensor model: its address,
// identity check, register tables and mode geometry.
type Profile struct {
	Name    string
	Address uint16

	// Version is the identity value ReadVersion must return.
	Version     uint16
	ReadVersion func(r RegisterReader) (uint16, error)

	// Formats maps every valid mode to its geometry.
	Formats map[Mode]csi.FrameFormat
	// ModeNames gives modes stable config names.
	ModeNames map[Mode]string
	// Tables maps modes to their configuration sequence. A mode with a
	// format but no table can be selected with SetMode but not configured.
	Tables map[Mode]regtable.Table

	Start regtable.Table
	Stop  regtable.Table

	// MetaLines is the number of metadata lines preceding image data.
	MetaLines uint32
	// Emits lists the pixel formats the sensor can stream.
	Emits []csi.PixelFormat
}

// Validate checks the structural invariants of a profile.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("mipisensor: profile name must be set")
	}
	if p.Address == 0 {
		return fmt.Errorf("mipisensor: %s: address must be non-zero", p.Name)
	}
	if p.ReadVersion == nil {
		return fmt.Errorf("mipisensor: %s: ReadVersion must be set", p.Name)
	}
	if len(p.Formats) == 0 {
		return fmt.Errorf("mipisensor: %s: no modes", p.Name)
	}
	if _, ok := p.Formats[ModeUnknown]; ok {
		return fmt.Errorf("mipisensor: %s: unknown mode has a format", p.Name)
	}
	for m := range p.Tables {
		if _, ok := p.Formats[m]; !ok {
			return fmt.Errorf("mipisensor: %s: table for %s has no format", p.Name, m)
		}
	}
	for m, f := range p.Formats {
		if f.Width == 0 || f.Height == 0 {
			return fmt.Errorf("mipisensor: %s: %s has empty geometry", p.Name, m)
		}
	}
	return nil
}

// Format resolves m to its geometry.
func (p Profile) Format(m Mode) (csi.FrameFormat, bool) {
	if m == ModeUnknown {
		return csi.FrameFormat{}, false
	}
	f, ok := p.Formats[m]
	return f, ok
}

// ModeByName looks a mode up by its config name.
func (p Profile) ModeByName(name string) (Mode, bool) {
	for m, n := range p.ModeNames {
		if n == name {
			return m, true
		}
	}
	return ModeUnknown, false
}

// ModeName returns the config name for m, or its numeric form.
func (p Profile) ModeName(m Mode) string {
	if n, ok := p.ModeNames[m]; ok {
		return n
	}
	return m.String()
}

func (p Profile) emits(pf csi.PixelFormat) bool {
	for _, e := range p.Emits {
		if e == pf {
			return true
		}
	}
	return false
}
