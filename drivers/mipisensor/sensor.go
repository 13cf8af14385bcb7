// Package mipisensor is a register-table driven controller for MIPI
// camera sensors reached over I²C through an output expander.
//
// Lifecycle:
//
//	Unknown --Configure--> Configured --Start--> Streaming --Stop--> Stopped
//	                           ^                     ^                  |
//	                           +------Configure------+-------Start------+
//
// All register sequencing is synchronous. Settling waits block the caller,
// and a table, once started, runs to completion or to its first failure.
package mipisensor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mipicam-go/drivers/csi"
	"mipicam-go/drivers/lii2cexpander"
	"mipicam-go/drivers/regtable"
	"mipicam-go/errcode"
	"mipicam-go/x/conv"
)

// State is the controller lifecycle state.
type State uint8

const (
	StateUnknown State = iota
	StateConfigured
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Instance is the sensor's index on its link. It picks the expander
	// output unless Output is set.
	Instance int
	// Output overrides the expander output derived from Instance.
	Output lii2cexpander.Output
	// Timeout bounds each register transaction. 0 uses the bus default.
	Timeout time.Duration
	// DrainPeriod is waited after the stop table so in-flight data can
	// leave the sensor. Default 100 ms.
	DrainPeriod time.Duration
	// Sleep implements settling waits. Default time.Sleep.
	Sleep regtable.Sleeper
	Logger *slog.Logger
}

// DefaultConfig returns the defaults for the first sensor on a link.
func DefaultConfig() Config {
	return Config{
		Output:      lii2cexpander.Output1,
		DrainPeriod: 100 * time.Millisecond,
		Sleep:       time.Sleep,
	}
}

// Status is a snapshot of controller state.
type Status struct {
	Sensor  string
	Mode    Mode
	Format  csi.FrameFormat
	State   State
	Running bool
}

// Controller owns one sensor's mode state and its expander output.
// Methods are safe for concurrent use; calls are serialised so there is a
// single active sequencing path per sensor.
type Controller struct {
	link *Link
	prof Profile
	out  lii2cexpander.Output
	cfg  Config
	log  *slog.Logger

	mu      sync.Mutex
	mode    Mode
	format  csi.FrameFormat
	state   State
	running bool
}

// New builds a controller in the Unknown state. It does not touch the device.
func New(link *Link, prof Profile, cfg Config) (*Controller, error) {
	if link == nil {
		return nil, errcode.New(errcode.InvalidParams, "mipisensor.New", "nil link")
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	if cfg.Output == lii2cexpander.OutputNone {
		cfg.Output = lii2cexpander.ForInstance(cfg.Instance)
	}
	if cfg.DrainPeriod <= 0 {
		cfg.DrainPeriod = 100 * time.Millisecond
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		link: link,
		prof: prof,
		out:  cfg.Output,
		cfg:  cfg,
		log:  log.With("sensor", prof.Name, "link", link.ID(), "output", cfg.Output.String()),
		mode: ModeUnknown,
	}, nil
}

// Introspection.

func (c *Controller) Profile() Profile              { return c.prof }
func (c *Controller) Link() *Link                   { return c.link }
func (c *Controller) Output() lii2cexpander.Output { return c.out }

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Sensor: c.prof.Name, Mode: c.mode, Format: c.format, State: c.state, Running: c.running}
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) Format() csi.FrameFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetupClock programs the link clock. On a shared link only the first
// call does any work.
func (c *Controller) SetupClock() error {
	return c.link.SetupClock()
}

// SetMode selects m and resolves its geometry without touching the device.
// ModeUnknown and modes the profile does not define fail with
// errcode.InvalidMode and leave the controller unchanged.
func (c *Controller) SetMode(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setModeLocked(m)
}

func (c *Controller) setModeLocked(m Mode) error {
	f, ok := c.prof.Format(m)
	if !ok {
		c.log.Error("mipisensor: rejecting mode", "mode", m.String())
		return errcode.New(errcode.InvalidMode, "set_mode", fmt.Sprintf("%s has no %s", c.prof.Name, m))
	}
	c.mode = m
	c.format = f
	return nil
}

// Version reads the sensor identity.
func (c *Controller) Version() (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prof.ReadVersion(c)
}

// Configure checks the sensor identity, selects m and runs its table.
//
// An invalid mode fails with errcode.InvalidMode, a mode without a table
// with errcode.UnmappedMode; neither performs any bus traffic. An identity
// mismatch fails with errcode.UnsupportedSensorVersion before any write.
// A transaction failure mid-table leaves the controller Unknown: the table
// may be partially applied.
func (c *Controller) Configure(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errcode.New(errcode.Busy, "configure", "sensor is streaming; stop first")
	}
	if _, ok := c.prof.Format(m); !ok {
		return errcode.New(errcode.InvalidMode, "configure", fmt.Sprintf("%s has no %s", c.prof.Name, m))
	}
	tbl, ok := c.prof.Tables[m]
	if !ok {
		c.log.Error("mipisensor: mode has no register table", "mode", c.prof.ModeName(m))
		return errcode.New(errcode.UnmappedMode, "configure", c.prof.ModeName(m))
	}

	v, err := c.prof.ReadVersion(c)
	if err != nil {
		return fmt.Errorf("mipisensor: %s version: %w", c.prof.Name, err)
	}
	c.log.Info("mipisensor: version", "version", conv.Hex16(v))
	if v != c.prof.Version {
		return errcode.New(errcode.UnsupportedSensorVersion, "configure",
			fmt.Sprintf("%s reports 0x%04X, want 0x%04X", c.prof.Name, v, c.prof.Version))
	}

	if err := c.setModeLocked(m); err != nil {
		return err
	}
	c.log.Info("mipisensor: configuring", "mode", c.prof.ModeName(m), "format", c.format.String(), "writes", tbl.Writes())
	if err := regtable.Run(c, tbl, c.cfg.Sleep); err != nil {
		c.state = StateUnknown
		return fmt.Errorf("mipisensor: %s configure %s: %w", c.prof.Name, c.prof.ModeName(m), err)
	}
	c.state = StateConfigured
	return nil
}

// Start replays the start table. It requires a successful Configure.
// Starting a streaming sensor is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateStreaming:
		return nil
	case StateConfigured, StateStopped:
	default:
		return errcode.New(errcode.NotConfigured, "start", c.prof.Name+" has not been configured")
	}
	c.log.Info("mipisensor: start")
	if err := regtable.Run(c, c.prof.Start, c.cfg.Sleep); err != nil {
		return fmt.Errorf("mipisensor: %s start: %w", c.prof.Name, err)
	}
	c.state = StateStreaming
	c.running = true
	return nil
}

// Stop replays the stop table and waits for the drain period. Stopping a
// sensor that is not streaming is a no-op. If the stop table fails the
// sensor is still considered streaming.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.log.Info("mipisensor: stop")
	if err := regtable.Run(c, c.prof.Stop, c.cfg.Sleep); err != nil {
		return fmt.Errorf("mipisensor: %s stop: %w", c.prof.Name, err)
	}
	c.cfg.Sleep(c.cfg.DrainPeriod)
	c.running = false
	c.state = StateStopped
	return nil
}

// GetRegister reads one register of the device at addr behind this
// sensor's expander output.
func (c *Controller) GetRegister(addr, reg uint16) (uint8, error) {
	var v uint8
	if err := c.link.bus.Do(c.cfg.Timeout, readJob(c.out, addr, reg, &v)); err != nil {
		return 0, err
	}
	c.log.Debug("mipisensor: get_register", "addr", conv.Hex8(addr), "reg", conv.Hex16(reg), "value", conv.Hex8(v))
	return v, nil
}

// SetRegister writes one register. timeout <= 0 uses the configured
// transaction timeout.
func (c *Controller) SetRegister(addr, reg uint16, value uint8, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	c.log.Debug("mipisensor: set_register", "addr", conv.Hex8(addr), "reg", conv.Hex16(reg), "value", conv.Hex8(value))
	return c.link.bus.Do(timeout, writeJob(c.out, addr, reg, value))
}

// ReadRegister implements RegisterReader.
func (c *Controller) ReadRegister(addr, reg uint16) (uint8, error) {
	return c.GetRegister(addr, reg)
}

// WriteRegister implements regtable.Writer.
func (c *Controller) WriteRegister(addr, reg uint16, value uint8) error {
	return c.SetRegister(addr, reg, value, 0)
}

// Layout computes where image data sits in a received frame for the
// current mode.
func (c *Controller) Layout(r csi.Receiver) (csi.Layout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeUnknown {
		return csi.Layout{}, errcode.New(errcode.InvalidMode, "layout", "no mode selected")
	}
	if !c.prof.emits(c.format.PixelFormat) {
		return csi.Layout{}, errcode.Wrap(errcode.Unsupported, "layout",
			fmt.Errorf("%w: %s cannot stream %s", csi.ErrUnsupportedFormat, c.prof.Name, c.format.PixelFormat))
	}
	return r.LayoutFor(c.format, c.prof.MetaLines)
}

