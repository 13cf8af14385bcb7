package frame

import (
	"bytes"
	"errors"
	"testing"

	"mipicam-go/errcode"
)

func uyvy(w, h int, u, y, v byte) Buffer {
	d := make([]byte, w*h*2)
	for i := 0; i < len(d); i += 4 {
		d[i], d[i+1], d[i+2], d[i+3] = u, y, v, y
	}
	return Buffer{Data: d, Width: w, Height: h, Format: UYVY}
}

func TestConvert_Size(t *testing.T) {
	c := NewConverter(nil)
	for _, g := range [][2]int{{2, 1}, {4, 4}, {640, 480}, {1920, 1536}} {
		r := c.Convert(uyvy(g[0], g[1], 128, 16, 128))
		if !r.OK() {
			t.Fatalf("%v: %v", g, r.Reason)
		}
		if len(r.Frame.Data) != g[0]*g[1]*4 || r.Frame.Format != RGBA32 {
			t.Fatalf("%v: got %d bytes %s", g, len(r.Frame.Data), r.Frame.Format)
		}
	}
	if c.Frames() != 4 {
		t.Fatalf("frames=%d", c.Frames())
	}
}

func TestConvert_NeutralChromaIsGrey(t *testing.T) {
	r := NewConverter(nil).Convert(uyvy(8, 4, 128, 235, 128))
	for i := 0; i < len(r.Frame.Data); i += 4 {
		px := r.Frame.Data[i : i+4]
		if !bytes.Equal(px, []byte{235, 235, 235, 255}) {
			t.Fatalf("pixel %d = %v", i/4, px)
		}
	}
}

func TestUYVYToRGBA_Values(t *testing.T) {
	tests := []struct {
		name string
		in   [4]byte
		want [8]byte
	}{
		{"red chroma", [4]byte{128, 100, 200, 50}, [8]byte{200, 48, 100, 255, 150, 0, 50, 255}},
		{"saturates high", [4]byte{255, 255, 255, 255}, [8]byte{255, 120, 255, 255, 255, 120, 255, 255}},
		{"saturates low", [4]byte{0, 0, 0, 0}, [8]byte{0, 135, 0, 255, 0, 135, 0, 255}},
		{"chroma shared", [4]byte{128, 10, 128, 20}, [8]byte{10, 10, 10, 255, 20, 20, 20, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, 8)
			UYVYToRGBA(dst, tt.in[:])
			if !bytes.Equal(dst, tt.want[:]) {
				t.Fatalf("got %v want %v", dst, tt.want)
			}
		})
	}
}

func TestConvert_Undersized(t *testing.T) {
	in := uyvy(4, 2, 128, 200, 128)
	in.Data = in.Data[:len(in.Data)-1]
	r := NewConverter(nil).Convert(in)
	if r.OK() || !errors.Is(r.Reason, errcode.MalformedFrame) {
		t.Fatalf("status=%s reason=%v", r.Status, r.Reason)
	}
	if len(r.Frame.Data) != 4*2*4 {
		t.Fatalf("len=%d", len(r.Frame.Data))
	}
	for i, b := range r.Frame.Data {
		if b != 0 {
			t.Fatalf("byte %d = %d, want all zero", i, b)
		}
	}
}

func TestConvert_OversizedMatchesTruncated(t *testing.T) {
	exact := uyvy(4, 2, 90, 120, 170)
	long := exact
	long.Data = append(append([]byte(nil), exact.Data...), 1, 2, 3, 4, 5)

	c := NewConverter(nil)
	a, b := c.Convert(exact), c.Convert(long)
	if !a.OK() || !b.OK() {
		t.Fatalf("status %s/%s", a.Status, b.Status)
	}
	if !bytes.Equal(a.Frame.Data, b.Frame.Data) {
		t.Fatal("trailing bytes changed the output")
	}
}

func TestConvert_FailureIsRed(t *testing.T) {
	c := NewConverter(nil)
	tests := []struct {
		name string
		in   Buffer
	}{
		{"odd width", Buffer{Data: make([]byte, 3*2*2), Width: 3, Height: 2, Format: UYVY}},
		{"wrong format", Buffer{Data: make([]byte, 4*2*4), Width: 4, Height: 2, Format: RGBA32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Convert(tt.in)
			if r.OK() || !errors.Is(r.Reason, errcode.ConversionFailed) {
				t.Fatalf("status=%s reason=%v", r.Status, r.Reason)
			}
			if len(r.Frame.Data) != tt.in.Width*tt.in.Height*4 {
				t.Fatalf("len=%d", len(r.Frame.Data))
			}
			for i := 0; i < len(r.Frame.Data); i += 4 {
				if !bytes.Equal(r.Frame.Data[i:i+4], []byte{255, 0, 0, 255}) {
					t.Fatalf("pixel %d = %v", i/4, r.Frame.Data[i:i+4])
				}
			}
		})
	}
}

func TestConvert_OutOfRangeGeometry(t *testing.T) {
	c := NewConverter(nil)
	for _, in := range []Buffer{
		{Width: 1 << 30, Height: 1 << 30, Format: UYVY},
		{Width: MaxDimension + 2, Height: 2, Format: UYVY},
		{Width: 2, Height: -4, Format: UYVY},
	} {
		r := c.Convert(in)
		if r.OK() || !errors.Is(r.Reason, errcode.ConversionFailed) {
			t.Fatalf("%dx%d: status=%s reason=%v", in.Width, in.Height, r.Status, r.Reason)
		}
		if len(r.Frame.Data) != 0 {
			t.Fatalf("%dx%d: len=%d", in.Width, in.Height, len(r.Frame.Data))
		}
	}
}

func TestConvert_CarriesMetadata(t *testing.T) {
	in := uyvy(2, 2, 128, 128, 128)
	in.Seq, in.TraceID = 42, "abc"
	r := NewConverter(nil).Convert(in)
	if r.Frame.Seq != 42 || r.Frame.TraceID != "abc" || r.Frame.Width != 2 || r.Frame.Height != 2 {
		t.Fatalf("frame=%s trace=%q", r.Frame, r.Frame.TraceID)
	}
}

func TestUYVYToRGBA_PanicsOnBadLengths(t *testing.T) {
	if err := safeConvert(make([]byte, 4), make([]byte, 4)); err == nil {
		t.Fatal("mismatched lengths not reported")
	}
}
