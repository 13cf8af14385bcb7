// Package frame holds the typed frame buffer passed between pipeline stages
// and the packed 4:2:2 to RGBA converter.
package frame

import (
	"fmt"
	"time"
)

// Format is the pixel layout of a Buffer.
type Format uint8

const (
	FormatUnknown Format = iota
	Gray8                // 1 byte per pixel
	RGB24                // R, G, B
	RGBA32               // R, G, B, A
	UYVY                 // packed 4:2:2, (U, Y0, V, Y1) per pixel pair
)

func (f Format) String() string {
	switch f {
	case Gray8:
		return "gray8"
	case RGB24:
		return "rgb24"
	case RGBA32:
		return "rgba32"
	case UYVY:
		return "uyvy"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the storage size of one pixel. UYVY averages 2.
func (f Format) BytesPerPixel() int {
	switch f {
	case Gray8:
		return 1
	case UYVY:
		return 2
	case RGB24:
		return 3
	case RGBA32:
		return 4
	default:
		return 0
	}
}

// Size returns the byte length of a w x h frame in f.
func (f Format) Size(w, h int) int {
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h * f.BytesPerPixel()
}

// Buffer is one frame. Data is row-major with no line padding.
// A Buffer is owned by the stage holding it until handed on.
type Buffer struct {
	Data      []byte
	Width     int
	Height    int
	Format    Format
	Seq       uint64
	Timestamp time.Time
	TraceID   string
}

// Expected returns the byte length Data should have.
func (b Buffer) Expected() int { return b.Format.Size(b.Width, b.Height) }

func (b Buffer) String() string {
	return fmt.Sprintf("#%d %dx%d %s (%d bytes)", b.Seq, b.Width, b.Height, b.Format, len(b.Data))
}

// Status classifies a conversion outcome.
type Status uint8

const (
	StatusOK Status = iota
	StatusDegraded
)

func (s Status) String() string {
	if s == StatusDegraded {
		return "degraded"
	}
	return "ok"
}

// Result is a converted frame. A degraded result still carries a frame of
// the right size; Reason says why its content is a substitute.
type Result struct {
	Frame  Buffer
	Status Status
	Reason error
}

// OK reports whether the frame was converted normally.
func (r Result) OK() bool { return r.Status == StatusOK }
