package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"mipicam-go/frame"
)

// Receiver delivers raw frames in arrival order. It returns io.EOF when the
// source is exhausted.
type Receiver interface {
	Receive(ctx context.Context) (frame.Buffer, error)
}

// ReaderReceiver cuts fixed-size UYVY frames out of a byte stream, such as
// the stdout of a capture tool. Each frame is preceded by Skip bytes of
// metadata that are discarded.
type ReaderReceiver struct {
	r      io.Reader
	width  int
	height int
	skip   int
	buf    []byte
}

// NewReaderReceiver reads width*height*2 bytes per frame after skipping
// skip bytes.
func NewReaderReceiver(r io.Reader, width, height, skip int) (*ReaderReceiver, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("pipeline: bad frame geometry %dx%d", width, height)
	}
	if skip < 0 {
		return nil, fmt.Errorf("pipeline: negative skip %d", skip)
	}
	return &ReaderReceiver{
		r:      r,
		width:  width,
		height: height,
		skip:   skip,
		buf:    make([]byte, skip+frame.UYVY.Size(width, height)),
	}, nil
}

// Receive blocks until a whole frame is read. A partial trailing frame is
// returned as a short buffer so the converter can flag it.
func (rr *ReaderReceiver) Receive(ctx context.Context) (frame.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return frame.Buffer{}, err
	}
	n, err := io.ReadFull(rr.r, rr.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF) && n > rr.skip:
		err = nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return frame.Buffer{}, io.EOF
	default:
		return frame.Buffer{}, err
	}
	data := make([]byte, n-rr.skip)
	copy(data, rr.buf[rr.skip:n])
	return frame.Buffer{
		Data:      data,
		Width:     rr.width,
		Height:    rr.height,
		Format:    frame.UYVY,
		Timestamp: time.Now(),
	}, err
}

// ChanReceiver adapts a channel of frames. A closed channel is io.EOF.
type ChanReceiver <-chan frame.Buffer

func (c ChanReceiver) Receive(ctx context.Context) (frame.Buffer, error) {
	select {
	case b, ok := <-c:
		if !ok {
			return frame.Buffer{}, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return frame.Buffer{}, ctx.Err()
	}
}
