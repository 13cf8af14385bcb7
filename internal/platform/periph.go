package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

var hostInit struct {
	once sync.Once
	err  error
}

func initHost() error {
	hostInit.once.Do(func() {
		_, hostInit.err = host.Init()
	})
	return hostInit.err
}

// PeriphFactory opens Linux I²C buses through periph.io. Bus ids are
// whatever i2creg accepts: "/dev/i2c-1", "I2C1" or "1". Buses are opened
// on first use and shared afterwards.
type PeriphFactory struct {
	speed physic.Frequency
	log   *slog.Logger

	mu    sync.Mutex
	buses map[string]*periphBus
}

// NewPeriphFactory initialises the host drivers. speed 0 keeps the bus's
// current clock.
func NewPeriphFactory(speed physic.Frequency, log *slog.Logger) (*PeriphFactory, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("platform: host init: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &PeriphFactory{speed: speed, log: log, buses: map[string]*periphBus{}}, nil
}

// ByID opens or returns the bus named id.
func (f *PeriphFactory) ByID(id string) (drivers.I2C, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.buses[id]; ok {
		return b, true
	}
	bc, err := i2creg.Open(id)
	if err != nil {
		f.log.Error("platform: open i2c bus", "bus", id, "err", err)
		return nil, false
	}
	if f.speed > 0 {
		if err := bc.SetSpeed(f.speed); err != nil {
			f.log.Warn("platform: set i2c speed", "bus", id, "speed", f.speed.String(), "err", err)
		}
	}
	b := &periphBus{bus: bc, max: maxTxSize(bc)}
	f.buses[id] = b
	f.log.Info("platform: opened i2c bus", "bus", id, "max_tx", b.max)
	return b, true
}

// Close releases every opened bus.
func (f *PeriphFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for id, b := range f.buses {
		if err := b.bus.Close(); err != nil && first == nil {
			first = fmt.Errorf("platform: close %s: %w", id, err)
		}
		delete(f.buses, id)
	}
	return first
}

// periphBus adapts a periph bus to drivers.I2C and enforces the adapter's
// transfer size limit.
type periphBus struct {
	bus i2c.BusCloser
	max int
}

func (p *periphBus) Tx(addr uint16, w, r []byte) error {
	if p.max > 0 && (len(w) > p.max || len(r) > p.max) {
		return fmt.Errorf("platform: transfer of %d/%d bytes exceeds limit %d", len(w), len(r), p.max)
	}
	return p.bus.Tx(addr, w, r)
}

func maxTxSize(b i2c.Bus) int {
	if l, ok := b.(conn.Limits); ok {
		return l.MaxTxSize()
	}
	return 0
}
