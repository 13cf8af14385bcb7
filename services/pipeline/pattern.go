package pipeline

import (
	"context"
	"fmt"
	"time"

	"mipicam-go/frame"
	"mipicam-go/x/timex"
)

// barsUYVY are (U, Y, V) triples for the eight 75% colour bars.
var barsUYVY = [8][3]byte{
	{128, 180, 128}, // white
	{44, 162, 142},  // yellow
	{156, 131, 44},  // cyan
	{72, 112, 58},   // green
	{184, 84, 198},  // magenta
	{100, 65, 212},  // red
	{212, 35, 114},  // blue
	{128, 16, 128},  // black
}

// PatternReceiver generates UYVY colour bars paced at a frame rate. The
// bars scroll one pair of pixels per frame so consecutive frames differ.
// It stands in for a live receiver on machines without a capture path.
type PatternReceiver struct {
	width, height int
	period        time.Duration
	next          time.Time
	seq           int
}

func NewPatternReceiver(width, height int, fps uint32) (*PatternReceiver, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("pipeline: bad pattern geometry %dx%d", width, height)
	}
	return &PatternReceiver{width: width, height: height, period: timex.FramePeriod(fps)}, nil
}

func (p *PatternReceiver) Receive(ctx context.Context) (frame.Buffer, error) {
	now := time.Now()
	if p.next.IsZero() {
		p.next = now
	}
	if wait := p.next.Sub(now); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return frame.Buffer{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return frame.Buffer{}, err
	}
	p.next = p.next.Add(p.period)

	buf := make([]byte, frame.UYVY.Size(p.width, p.height))
	line := buf[:p.width*2]
	pairs := p.width / 2
	for i := 0; i < pairs; i++ {
		bar := barsUYVY[((i+p.seq)%pairs)*len(barsUYVY)/pairs]
		o := i * 4
		line[o], line[o+1], line[o+2], line[o+3] = bar[0], bar[1], bar[2], bar[1]
	}
	for y := 1; y < p.height; y++ {
		copy(buf[y*len(line):], line)
	}
	p.seq++
	return frame.Buffer{
		Data:      buf,
		Width:     p.width,
		Height:    p.height,
		Format:    frame.UYVY,
		Timestamp: time.Now(),
	}, nil
}
