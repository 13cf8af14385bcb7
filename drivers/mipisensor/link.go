package mipisensor

import (
	"fmt"
	"log/slog"
	"sync"

	"mipicam-go/drivers/regtable"
)

// Link is one physical camera link: an I²C bus plus the clock generator
// that feeds every sensor on it. Stereo rigs run two Controllers over one
// Link; the clock is programmed once per Link, not once per sensor.
type Link struct {
	id    string
	bus   Bus
	clock regtable.Table
	log   *slog.Logger

	mu      sync.Mutex
	clocked bool
}

// NewLink binds a link to bus. clock is the clock generator programming
// sequence; it may be empty when the clock is set up out of band.
func NewLink(id string, bus Bus, clock regtable.Table, log *slog.Logger) *Link {
	if log == nil {
		log = slog.Default()
	}
	return &Link{id: id, bus: bus, clock: clock, log: log}
}

// ID returns the link identifier.
func (l *Link) ID() string { return l.id }

// Bus returns the link's bus.
func (l *Link) Bus() Bus { return l.bus }

// SetupClock programs the clock generator. Only the first successful call
// touches the hardware; later calls from any sensor on the link return nil.
// A failed attempt may be retried.
func (l *Link) SetupClock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clocked {
		l.log.Debug("mipisensor: clock already set up", "link", l.id)
		return nil
	}
	l.log.Info("mipisensor: setting up clock", "link", l.id, "writes", l.clock.Writes())
	if err := regtable.Run(directWriter{bus: l.bus}, l.clock, nil); err != nil {
		return fmt.Errorf("mipisensor: link %s clock: %w", l.id, err)
	}
	l.clocked = true
	return nil
}

// ClockReady reports whether SetupClock has completed.
func (l *Link) ClockReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clocked
}
