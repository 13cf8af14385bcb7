package framesink

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mipicam-go/bus"
	"mipicam-go/errcode"
	"mipicam-go/frame"
	"mipicam-go/services/pipeline"
)

type fakeEncoder struct {
	paths []string
	err   error
}

func (f *fakeEncoder) Write(path string, _ frame.Buffer) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	return nil
}

func rgba(seq uint64) frame.Result {
	return frame.Result{Frame: frame.Buffer{Data: make([]byte, 2*2*4), Width: 2, Height: 2, Format: frame.RGBA32, Seq: seq}}
}

func TestSaver_NamesAndLimit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "left")
	enc := &fakeEncoder{}
	cfg := DefaultConfig(dir)
	cfg.Limit = 3
	s, err := NewSaver(cfg, enc)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		if err := s.Consume(ctx, rgba(uint64(i))); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if err := s.Consume(ctx, rgba(3)); !errors.Is(err, pipeline.ErrStop) {
		t.Fatalf("third frame err=%v want ErrStop", err)
	}
	if err := s.Consume(ctx, rgba(4)); !errors.Is(err, pipeline.ErrStop) {
		t.Fatalf("after limit err=%v", err)
	}
	want := []string{"frame_0000.png", "frame_0001.png", "frame_0002.png"}
	if len(enc.paths) != len(want) {
		t.Fatalf("paths=%v", enc.paths)
	}
	for i, w := range want {
		if enc.paths[i] != filepath.Join(dir, w) {
			t.Fatalf("path %d = %s", i, enc.paths[i])
		}
	}
	if s.Saved() != 3 {
		t.Fatalf("saved=%d", s.Saved())
	}
}

func TestSaver_Shapes(t *testing.T) {
	s, err := NewSaver(Config{Dir: t.TempDir()}, &fakeEncoder{})
	if err != nil {
		t.Fatal(err)
	}
	ok := []frame.Buffer{
		{Data: make([]byte, 4), Width: 2, Height: 2, Format: frame.Gray8},
		{Data: make([]byte, 12), Width: 2, Height: 2, Format: frame.RGB24},
		{Data: make([]byte, 16), Width: 2, Height: 2, Format: frame.RGBA32},
	}
	for _, f := range ok {
		if err := s.Consume(context.Background(), frame.Result{Frame: f}); err != nil {
			t.Fatalf("%s: %v", f.Format, err)
		}
	}
	bad := []frame.Buffer{
		{Data: make([]byte, 8), Width: 2, Height: 2, Format: frame.UYVY},
		{Data: make([]byte, 15), Width: 2, Height: 2, Format: frame.RGBA32},
	}
	for _, f := range bad {
		if err := s.Consume(context.Background(), frame.Result{Frame: f}); err == nil {
			t.Fatalf("%s accepted", f)
		}
	}
}

func TestSaver_Degraded(t *testing.T) {
	enc := &fakeEncoder{}
	s, err := NewSaver(Config{Dir: t.TempDir(), SkipDegraded: true}, enc)
	if err != nil {
		t.Fatal(err)
	}
	r := rgba(1)
	r.Status, r.Reason = frame.StatusDegraded, errcode.New(errcode.MalformedFrame, "convert", "short")
	if err := s.Consume(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if len(enc.paths) != 0 {
		t.Fatal("degraded frame saved")
	}
}

func TestSaver_EncoderError(t *testing.T) {
	boom := errors.New("boom")
	s, err := NewSaver(Config{Dir: t.TempDir()}, &fakeEncoder{err: boom})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Consume(context.Background(), rgba(1)); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if _, err := NewSaver(Config{}, &fakeEncoder{}); err == nil {
		t.Fatal("empty dir accepted")
	}
}

func TestSnapshots(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(bus.T("stream", "left", "snapshot"))

	calls := 0
	snap := &Snapshots{Conn: conn, Stream: "left", Every: 2, Encode: func(f frame.Buffer) ([]byte, error) {
		calls++
		return []byte{byte(f.Seq)}, nil
	}}
	for i := uint64(1); i <= 4; i++ {
		if err := snap.Consume(context.Background(), rgba(i)); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Fatalf("encoded %d frames, want 2", calls)
	}
	for _, want := range []byte{2, 4} {
		select {
		case m := <-sub.Channel():
			if got := m.Payload.([]byte); got[0] != want {
				t.Fatalf("snapshot seq %d want %d", got[0], want)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("missing snapshot")
		}
	}
}

func TestTee_StopsAtFirstError(t *testing.T) {
	var order []string
	a := pipeline.ConsumerFunc(func(context.Context, frame.Result) error { order = append(order, "a"); return pipeline.ErrStop })
	b := pipeline.ConsumerFunc(func(context.Context, frame.Result) error { order = append(order, "b"); return nil })
	if err := (Tee{a, b}).Consume(context.Background(), rgba(1)); !errors.Is(err, pipeline.ErrStop) {
		t.Fatalf("err=%v", err)
	}
	if len(order) != 1 {
		t.Fatalf("order=%v", order)
	}
}
