// Package isx031 describes the SG3 ISX031C MIPI camera module.
//
// The module's serializer handles sensor bring-up on its own, so the mode,
// start and stop tables are settling waits only. The module exposes no
// identity register; Version is fixed.
package isx031

import (
	"time"

	"mipicam-go/drivers/csi"
	"mipicam-go/drivers/mipisensor"
	"mipicam-go/drivers/regtable"
)

// Address is the sensor's I²C address behind the expander.
const Address = 0x1A

// Version is the only identity this driver accepts.
const Version uint16 = 0x0100

// Modes.
const (
	Mode1920x1536YUV30 mipisensor.Mode = 0
)

const (
	waitMs      = 1
	waitStartMs = 200
)

var (
	modeTables = map[mipisensor.Mode]regtable.Table{
		Mode1920x1536YUV30: {regtable.WaitMs(waitMs)},
	}
	startTable = regtable.Table{regtable.WaitMs(waitStartMs)}
	stopTable  = regtable.Table{regtable.WaitMs(waitMs)}
)

// Profile returns the ISX031 profile. Each call returns fresh maps.
func Profile() mipisensor.Profile {
	tables := make(map[mipisensor.Mode]regtable.Table, len(modeTables))
	for m, t := range modeTables {
		tables[m] = t
	}
	return mipisensor.Profile{
		Name:        "isx031",
		Address:     Address,
		Version:     Version,
		ReadVersion: func(mipisensor.RegisterReader) (uint16, error) { return Version, nil },
		Formats: map[mipisensor.Mode]csi.FrameFormat{
			Mode1920x1536YUV30: {Width: 1920, Height: 1536, Framerate: 30, PixelFormat: csi.YUV422UYVY},
		},
		ModeNames: map[mipisensor.Mode]string{
			Mode1920x1536YUV30: "1920x1536_30fps_yuv",
		},
		Tables:    tables,
		Start:     startTable,
		Stop:      stopTable,
		MetaLines: 1,
		Emits:     []csi.PixelFormat{csi.YUV422UYVY},
	}
}

// StartDelay is how long Start blocks for.
func StartDelay() time.Duration { return startTable.TotalDelay() }
