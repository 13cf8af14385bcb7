// Package framesink holds frame consumers that persist or publish
// converted frames.
package framesink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"mipicam-go/bus"
	"mipicam-go/frame"
	"mipicam-go/services/pipeline"
)

// Encoder writes one frame to path. Implementations handle Gray8, RGB24
// and RGBA32 buffers and any channel reordering their format needs.
type Encoder interface {
	Write(path string, f frame.Buffer) error
}

// Config for a Saver.
type Config struct {
	Dir string
	// Limit stops the stream after this many saved frames. 0 is unbounded.
	Limit int
	// Pattern names files from the save index. Default "frame_%04d.png".
	Pattern string
	// SkipDegraded drops degraded frames instead of saving them.
	SkipDegraded bool
	Logger       *slog.Logger
}

func DefaultConfig(dir string) Config {
	return Config{Dir: dir, Limit: 10, Pattern: "frame_%04d.png"}
}

// Saver writes frames to numbered image files and ends the stream once
// Limit frames are saved.
type Saver struct {
	cfg Config
	enc Encoder
	log *slog.Logger

	mu    sync.Mutex
	saved int
}

// NewSaver creates cfg.Dir if needed.
func NewSaver(cfg Config, enc Encoder) (*Saver, error) {
	if enc == nil {
		return nil, errors.New("framesink: nil encoder")
	}
	if cfg.Dir == "" {
		return nil, errors.New("framesink: output directory must be set")
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("framesink: negative limit %d", cfg.Limit)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "frame_%04d.png"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("framesink: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Saver{cfg: cfg, enc: enc, log: log.With("dir", cfg.Dir)}, nil
}

// Saved returns how many frames were written.
func (s *Saver) Saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Consume implements pipeline.Consumer.
func (s *Saver) Consume(_ context.Context, r frame.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Limit > 0 && s.saved >= s.cfg.Limit {
		return pipeline.ErrStop
	}
	if !r.OK() {
		s.log.Warn("framesink: degraded frame", "seq", r.Frame.Seq, "reason", r.Reason)
		if s.cfg.SkipDegraded {
			return nil
		}
	}
	if err := checkShape(r.Frame); err != nil {
		return err
	}
	path := filepath.Join(s.cfg.Dir, fmt.Sprintf(s.cfg.Pattern, s.saved))
	if err := s.enc.Write(path, r.Frame); err != nil {
		return fmt.Errorf("framesink: write %s: %w", path, err)
	}
	s.saved++
	s.log.Debug("framesink: saved", "path", path, "seq", r.Frame.Seq)
	if s.cfg.Limit > 0 && s.saved >= s.cfg.Limit {
		s.log.Info("framesink: frame limit reached", "saved", s.saved)
		return pipeline.ErrStop
	}
	return nil
}

func checkShape(f frame.Buffer) error {
	switch f.Format {
	case frame.Gray8, frame.RGB24, frame.RGBA32:
	default:
		return fmt.Errorf("framesink: cannot save %s frames", f.Format)
	}
	if len(f.Data) != f.Expected() || f.Expected() == 0 {
		return fmt.Errorf("framesink: frame %s has %d bytes, want %d", f, len(f.Data), f.Expected())
	}
	return nil
}

// EncodeFunc turns a frame into an encoded image, e.g. JPEG.
type EncodeFunc func(f frame.Buffer) ([]byte, error)

// Snapshots publishes every Nth frame, encoded, on stream/<name>/snapshot.
// It never ends the stream; encode failures are logged and skipped.
type Snapshots struct {
	Conn   *bus.Connection
	Stream string
	Every  uint64
	Encode EncodeFunc
	Logger *slog.Logger
}

func (s *Snapshots) Consume(_ context.Context, r frame.Result) error {
	every := s.Every
	if every == 0 {
		every = 30
	}
	if r.Frame.Seq%every != 0 {
		return nil
	}
	img, err := s.Encode(r.Frame)
	if err != nil {
		log := s.Logger
		if log == nil {
			log = slog.Default()
		}
		log.Warn("framesink: snapshot encode failed", "stream", s.Stream, "seq", r.Frame.Seq, "err", err)
		return nil
	}
	s.Conn.Publish(s.Conn.NewMessage(bus.T("stream", s.Stream, "snapshot"), img, true))
	return nil
}

// Tee fans one stream out to several consumers in order. The first error
// ends the fan-out and is returned.
type Tee []pipeline.Consumer

func (t Tee) Consume(ctx context.Context, r frame.Result) error {
	for _, c := range t {
		if err := c.Consume(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
