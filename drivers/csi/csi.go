// Package csi describes how MIPI CSI-2 pixel data is laid out: pixel
// formats, the frame geometry bound to a sensor mode, and the byte layout
// the receiver uses to locate displayable pixels in a frame buffer.
package csi

import (
	"errors"
	"fmt"

	"mipicam-go/x/mathx"
)

// PixelFormat is how pixel data is encoded on the wire.
type PixelFormat uint8

const (
	RAW8        PixelFormat = iota // one byte per pixel
	RAW10                          // 5 bytes carry 4 pixels
	RAW12                          // 3 bytes carry 2 pixels
	YUV422UYVY                     // packed 4:2:2, 4 bytes carry 2 pixels
)

func (p PixelFormat) String() string {
	switch p {
	case RAW8:
		return "raw8"
	case RAW10:
		return "raw10"
	case RAW12:
		return "raw12"
	case YUV422UYVY:
		return "yuv422_uyvy"
	default:
		return fmt.Sprintf("pixel_format(%d)", uint8(p))
	}
}

// TransmittedLineBytes returns how many bytes encode one line of width
// pixels in format p.
func (p PixelFormat) TransmittedLineBytes(width uint32) (uint32, error) {
	switch p {
	case RAW8:
		return width, nil
	case RAW10:
		return mathx.CeilDiv(width*5, 4), nil
	case RAW12:
		return mathx.CeilDiv(width*3, 2), nil
	case YUV422UYVY:
		return width * 2, nil
	default:
		return 0, fmt.Errorf("csi: unknown pixel format %d", uint8(p))
	}
}

// FrameFormat is the geometry a sensor mode resolves to.
type FrameFormat struct {
	Width       uint32
	Height      uint32
	Framerate   uint32
	PixelFormat PixelFormat
}

// FrameBytes is the size of one packed frame without framing or padding.
func (f FrameFormat) FrameBytes() (uint32, error) {
	lb, err := f.PixelFormat.TransmittedLineBytes(f.Width)
	if err != nil {
		return 0, err
	}
	return lb * f.Height, nil
}

func (f FrameFormat) String() string {
	return fmt.Sprintf("%dx%d@%d %s", f.Width, f.Height, f.Framerate, f.PixelFormat)
}

// Receiver describes where the data plane places received bytes.
// StartByte accounts for metadata and cache alignment ahead of the frame;
// LineAlign is the padding boundary every received line is rounded up to.
type Receiver struct {
	StartByte uint32
	LineAlign uint32
}

// DefaultReceiver matches a receiver with no leading data and 64-byte line
// alignment.
func DefaultReceiver() Receiver { return Receiver{LineAlign: 64} }

// ReceivedLineBytes is the distance between the starts of two received lines.
func (r Receiver) ReceivedLineBytes(lineBytes uint32) uint32 {
	return mathx.RoundUp(lineBytes, r.LineAlign)
}

// Layout tells a frame reader where displayable pixels live.
type Layout struct {
	StartByte         uint32
	ReceivedLineBytes uint32
	Format            FrameFormat
}

// ErrUnsupportedFormat is returned when a sensor cannot emit the requested format.
var ErrUnsupportedFormat = errors.New("csi: unsupported pixel format for sensor")

// LayoutFor computes the buffer layout for a frame preceded by metaLines
// lines of metadata.
func (r Receiver) LayoutFor(f FrameFormat, metaLines uint32) (Layout, error) {
	tx, err := f.PixelFormat.TransmittedLineBytes(f.Width)
	if err != nil {
		return Layout{}, err
	}
	rx := r.ReceivedLineBytes(tx)
	return Layout{
		StartByte:         r.StartByte + rx*metaLines,
		ReceivedLineBytes: rx,
		Format:            f,
	}, nil
}
