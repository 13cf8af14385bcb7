// Package i2cbus serialises access to one physical I²C bus.
//
// Every bus has a single worker goroutine. A Job runs on that goroutine
// with exclusive use of the bus, so multi-step sequences such as "select
// the expander output, then talk to the sensor" cannot be interleaved with
// another caller's traffic.
package i2cbus

import (
	"sync"
	"time"

	"mipicam-go/errcode"

	"tinygo.org/x/drivers"
)

// Job runs with exclusive access to the bus.
type Job func(bus drivers.I2C) error

// Config for an Owner. Zero fields take defaults.
type Config struct {
	// DefaultTimeout bounds Do calls made with timeout <= 0. Default 250 ms.
	DefaultTimeout time.Duration
	// QueueLen is the job queue depth. Default 16.
	QueueLen int
}

type request struct {
	fn   Job
	done chan error // buffered(1); worker replies best-effort
}

// Owner hosts the worker for one bus.
type Owner struct {
	id   string
	hw   drivers.I2C
	cfg  Config
	reqs chan request
	quit chan struct{}
	once sync.Once
}

// Ensure compile-time conformance with drivers.I2C
var _ drivers.I2C = (*Owner)(nil)

// New starts a worker that owns hw. Call Close to stop it.
func New(id string, hw drivers.I2C, cfg Config) *Owner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 250 * time.Millisecond
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 16
	}
	o := &Owner{
		id:   id,
		hw:   hw,
		cfg:  cfg,
		reqs: make(chan request, cfg.QueueLen),
		quit: make(chan struct{}),
	}
	go o.loop()
	return o
}

// ID returns the bus identifier, e.g. "i2c0".
func (o *Owner) ID() string { return o.id }

func (o *Owner) loop() {
	for {
		select {
		case req := <-o.reqs:
			err := req.fn(o.hw)
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

// Close stops the worker. Pending jobs are abandoned.
func (o *Owner) Close() {
	o.once.Do(func() { close(o.quit) })
}

// Do runs fn on the bus worker. The timeout covers both queueing and
// execution; on expiry Do returns errcode.I2CTimeout and fn may still run
// to completion in the background. Errors from fn that carry no code are
// reported as errcode.I2CTransactionFailed. Nothing is retried.
func (o *Owner) Do(timeout time.Duration, fn Job) error {
	if timeout <= 0 {
		timeout = o.cfg.DefaultTimeout
	}
	req := request{fn: fn, done: make(chan error, 1)}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case o.reqs <- req:
	case <-o.quit:
		return errcode.New(errcode.I2CTransactionFailed, o.id, "bus closed")
	case <-t.C:
		return errcode.New(errcode.I2CTimeout, o.id, "queue full")
	}

	select {
	case err := <-req.done:
		return classify(o.id, err)
	case <-o.quit:
		return errcode.New(errcode.I2CTransactionFailed, o.id, "bus closed")
	case <-t.C:
		return errcode.New(errcode.I2CTimeout, o.id, "transaction did not complete in "+timeout.String())
	}
}

// Tx performs a single transaction with the default timeout.
func (o *Owner) Tx(addr uint16, w, r []byte) error {
	return o.Do(0, func(bus drivers.I2C) error { return bus.Tx(addr, w, r) })
}

func classify(id string, err error) error {
	if err == nil {
		return nil
	}
	switch errcode.Of(err) {
	case errcode.Error:
		return errcode.Wrap(errcode.I2CTransactionFailed, id, err)
	case errcode.Timeout:
		return errcode.Wrap(errcode.I2CTimeout, id, err)
	default:
		return err
	}
}
