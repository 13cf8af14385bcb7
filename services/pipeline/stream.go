// Package pipeline runs per-camera frame streams: receive, convert,
// consume, one frame at a time in arrival order.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"mipicam-go/bus"
	"mipicam-go/frame"
	"mipicam-go/types"
	"mipicam-go/x/timex"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrStop is returned by a Consumer that wants no more frames.
var ErrStop = errors.New("pipeline: stop")

// Consumer receives every converted frame, degraded ones included.
type Consumer interface {
	Consume(ctx context.Context, r frame.Result) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, r frame.Result) error

func (f ConsumerFunc) Consume(ctx context.Context, r frame.Result) error { return f(ctx, r) }

type Config struct {
	Name string
	// Limit stops the stream after this many frames. 0 runs until the
	// receiver is exhausted, Stop is called or ctx ends.
	Limit uint64
	// Conn, when set, receives retained stats on stream/<name>/stats.
	Conn *bus.Connection
	// StatsEvery publishes stats every N frames. Default 30.
	StatsEvery uint64
	Logger     *slog.Logger
}

// Stream moves frames from a Receiver through a Converter to a Consumer.
type Stream struct {
	cfg  Config
	recv Receiver
	conv *frame.Converter
	cons Consumer
	log  *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	stats types.StreamStats
	start time.Time
}

// New builds a stream. conv may be shared between streams.
func New(cfg Config, recv Receiver, conv *frame.Converter, cons Consumer) *Stream {
	if cfg.StatsEvery == 0 {
		cfg.StatsEvery = 30
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("stream", cfg.Name)
	if conv == nil {
		conv = frame.NewConverter(log)
	}
	return &Stream{
		cfg:   cfg,
		recv:  recv,
		conv:  conv,
		cons:  cons,
		log:   log,
		stop:  make(chan struct{}),
		stats: types.StreamStats{Stream: cfg.Name, TraceID: uuid.NewString()},
	}
}

func (s *Stream) Name() string { return s.cfg.Name }

// Stop ends Run after the frame in flight. Safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stats returns a snapshot of the stream counters.
func (s *Stream) Stats() types.StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	if !s.start.IsZero() {
		if el := time.Since(s.start).Seconds(); el > 0 {
			st.FPS = float64(st.Frames) / el
		}
	}
	st.TS = timex.NowMs()
	return st
}

// Run processes frames until the frame limit, Stop, consumer ErrStop,
// receiver EOF or ctx cancellation. The first three end with a nil error.
func (s *Stream) Run(ctx context.Context) error {
	s.mu.Lock()
	s.start = time.Now()
	s.stats.Running = true
	s.mu.Unlock()
	s.log.Info("pipeline: stream started", "trace_id", s.stats.TraceID, "limit", s.cfg.Limit)

	err := s.run(ctx)

	s.mu.Lock()
	s.stats.Running = false
	s.mu.Unlock()
	s.publish()
	st := s.Stats()
	if err != nil {
		s.log.Error("pipeline: stream failed", "frames", st.Frames, "err", err)
	} else {
		s.log.Info("pipeline: stream finished", "frames", st.Frames, "degraded", st.Degraded, "fps", st.FPS)
	}
	return err
}

func (s *Stream) run(ctx context.Context) error {
	var seq uint64
	for {
		if s.cfg.Limit > 0 && seq >= s.cfg.Limit {
			return nil
		}
		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		buf, err := s.recv.Receive(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		seq++
		buf.Seq = seq
		buf.TraceID = s.stats.TraceID

		res := s.conv.Convert(buf)
		s.record(res)

		if err := s.cons.Consume(ctx, res); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		if seq%s.cfg.StatsEvery == 0 {
			s.publish()
		}
	}
}

func (s *Stream) record(r frame.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Frames++
	if !r.OK() {
		s.stats.Degraded++
		s.stats.LastReason = r.Reason.Error()
	}
}

func (s *Stream) publish() {
	if s.cfg.Conn == nil {
		return
	}
	st := s.Stats()
	s.cfg.Conn.Publish(s.cfg.Conn.NewMessage(bus.T("stream", s.cfg.Name, "stats"), st, true))
}

// RunAll runs independent streams concurrently. The first failure cancels
// the others.
func RunAll(ctx context.Context, streams ...*Stream) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		s := s
		g.Go(func() error { return s.Run(gctx) })
	}
	return g.Wait()
}
