package frame

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"mipicam-go/errcode"
	"mipicam-go/x/mathx"
)

// BT.601 coefficients for YCbCr to RGB with chroma centred at 128.
const (
	crToR float32 = 1.402
	cbToG float32 = 0.344136
	crToG float32 = 0.714136
	cbToB float32 = 1.772
)

// MaxDimension bounds each side of a frame the converter accepts.
const MaxDimension = 16384

// Converter turns UYVY frames into RGBA frames. It keeps no per-frame state
// beyond a diagnostic counter and is safe for concurrent use, though a
// stream should feed it one frame at a time to keep ordering.
type Converter struct {
	log    *slog.Logger
	frames atomic.Uint64
}

// NewConverter returns a converter logging to log (slog.Default if nil).
func NewConverter(log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}
	return &Converter{log: log}
}

// Frames returns the number of frames converted so far.
func (c *Converter) Frames() uint64 { return c.frames.Load() }

// Convert converts one UYVY frame. It never fails: a frame that cannot be
// converted yields a degraded result.
//
//   - Trailing bytes past Width*Height*2 are ignored.
//   - A short frame yields an all-zero RGBA frame (alpha included) and
//     errcode.MalformedFrame.
//   - Any other failure yields a solid opaque red frame and
//     errcode.ConversionFailed. A side beyond MaxDimension fails the same
//     way but carries no pixel data.
func (c *Converter) Convert(in Buffer) Result {
	n := c.frames.Add(1)
	out := Buffer{
		Width:     in.Width,
		Height:    in.Height,
		Format:    RGBA32,
		Seq:       in.Seq,
		Timestamp: in.Timestamp,
		TraceID:   in.TraceID,
	}

	if in.Format != UYVY {
		return c.failed(out, n, fmt.Errorf("input is %s, want uyvy", in.Format))
	}
	if in.Width <= 0 || in.Height <= 0 || in.Width%2 != 0 ||
		in.Width > MaxDimension || in.Height > MaxDimension {
		return c.failed(out, n, fmt.Errorf("bad geometry %dx%d", in.Width, in.Height))
	}

	want := UYVY.Size(in.Width, in.Height)
	out.Data = make([]byte, RGBA32.Size(in.Width, in.Height))
	if len(in.Data) < want {
		c.log.Warn("frame: short frame", "frame", n, "seq", in.Seq, "got", len(in.Data), "want", want)
		return Result{
			Frame:  out,
			Status: StatusDegraded,
			Reason: errcode.New(errcode.MalformedFrame, "convert", fmt.Sprintf("%d bytes, want %d", len(in.Data), want)),
		}
	}

	if err := safeConvert(out.Data, in.Data[:want]); err != nil {
		return c.failed(out, n, err)
	}
	return Result{Frame: out}
}

func (c *Converter) failed(out Buffer, n uint64, cause error) Result {
	c.log.Error("frame: conversion failed", "frame", n, "seq", out.Seq, "err", cause)
	out.Data = nil
	if out.Width <= MaxDimension && out.Height <= MaxDimension {
		out.Data = make([]byte, RGBA32.Size(out.Width, out.Height))
		FillRGBA(out.Data, 255, 0, 0, 255)
	}
	return Result{
		Frame:  out,
		Status: StatusDegraded,
		Reason: errcode.Wrap(errcode.ConversionFailed, "convert", cause),
	}
}

func safeConvert(dst, src []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	UYVYToRGBA(dst, src)
	return nil
}

// UYVYToRGBA converts packed UYVY in src to RGBA in dst. Each (U, Y0, V, Y1)
// group becomes two pixels sharing U and V. len(dst) must be 2*len(src) and
// len(src) a multiple of 4; rows need no special handling because an even
// width keeps groups from straddling rows.
func UYVYToRGBA(dst, src []byte) {
	if len(src)%4 != 0 || len(dst) != 2*len(src) {
		panic(fmt.Sprintf("frame: UYVYToRGBA dst %d src %d", len(dst), len(src)))
	}
	for i, j := 0, 0; i < len(src); i, j = i+4, j+8 {
		cb := float32(src[i]) - 128
		cr := float32(src[i+2]) - 128
		dr := crToR * cr
		dg := -cbToG*cb - crToG*cr
		db := cbToB * cb

		y0 := float32(src[i+1])
		dst[j+0] = mathx.SaturateU8(y0 + dr)
		dst[j+1] = mathx.SaturateU8(y0 + dg)
		dst[j+2] = mathx.SaturateU8(y0 + db)
		dst[j+3] = 255

		y1 := float32(src[i+3])
		dst[j+4] = mathx.SaturateU8(y1 + dr)
		dst[j+5] = mathx.SaturateU8(y1 + dg)
		dst[j+6] = mathx.SaturateU8(y1 + db)
		dst[j+7] = 255
	}
}

// FillRGBA paints every pixel of an RGBA buffer.
func FillRGBA(dst []byte, r, g, b, a uint8) {
	for i := 0; i+3 < len(dst); i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, b, a
	}
}
