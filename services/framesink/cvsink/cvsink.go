// Package cvsink encodes frames with OpenCV.
package cvsink

import (
	"fmt"

	"mipicam-go/frame"

	"gocv.io/x/gocv"
)

// Encoder writes frames with gocv.IMWrite; the file extension picks the
// image format. It implements framesink.Encoder.
type Encoder struct{}

func (Encoder) Write(path string, f frame.Buffer) error {
	mat, err := toBGR(f)
	if err != nil {
		return err
	}
	defer mat.Close()
	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("cvsink: IMWrite %s failed", path)
	}
	return nil
}

// JPEG encodes f as JPEG.
func JPEG(f frame.Buffer) ([]byte, error) {
	mat, err := toBGR(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// toBGR wraps f in a Mat in OpenCV's channel order. Grayscale frames pass
// through; RGB and RGBA are reordered to BGR and BGRA.
func toBGR(f frame.Buffer) (gocv.Mat, error) {
	var (
		mt   gocv.MatType
		code gocv.ColorConversionCode
		conv bool
	)
	switch f.Format {
	case frame.Gray8:
		mt = gocv.MatTypeCV8UC1
	case frame.RGB24:
		mt, code, conv = gocv.MatTypeCV8UC3, gocv.ColorRGBToBGR, true
	case frame.RGBA32:
		mt, code, conv = gocv.MatTypeCV8UC4, gocv.ColorRGBAToBGRA, true
	default:
		return gocv.Mat{}, fmt.Errorf("cvsink: unsupported format %s", f.Format)
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
	if err != nil {
		return gocv.Mat{}, err
	}
	if conv {
		gocv.CvtColor(mat, &mat, code)
	}
	return mat, nil
}
