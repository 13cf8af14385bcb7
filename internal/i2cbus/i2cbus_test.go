package i2cbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mipicam-go/errcode"

	"tinygo.org/x/drivers"
)

type fakeBus struct {
	delay  time.Duration
	err    error
	active atomic.Int32
	maxAct atomic.Int32
	txs    atomic.Int32
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxAct.Load()
		if n <= m || f.maxAct.CompareAndSwap(m, n) {
			break
		}
	}
	f.txs.Add(1)
	time.Sleep(f.delay)
	for i := range r {
		r[i] = 0xA5
	}
	return f.err
}

func TestDo_SerialisesJobs(t *testing.T) {
	hw := &fakeBus{delay: time.Millisecond}
	o := New("i2c0", hw, Config{DefaultTimeout: time.Second})
	defer o.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := o.Do(0, func(bus drivers.I2C) error {
				if err := bus.Tx(0x70, []byte{0x01}, nil); err != nil {
					return err
				}
				return bus.Tx(0x1A, []byte{0x30, 0x00, 0x01}, nil)
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()
	if hw.maxAct.Load() != 1 {
		t.Fatalf("transactions overlapped: max concurrent %d", hw.maxAct.Load())
	}
	if hw.txs.Load() != 16 {
		t.Fatalf("expected 16 transactions, got %d", hw.txs.Load())
	}
}

func TestDo_Timeout(t *testing.T) {
	hw := &fakeBus{delay: 200 * time.Millisecond}
	o := New("i2c0", hw, Config{})
	defer o.Close()

	err := o.Do(10*time.Millisecond, func(bus drivers.I2C) error {
		return bus.Tx(0x1A, []byte{0, 0}, make([]byte, 1))
	})
	if !errors.Is(err, errcode.I2CTimeout) {
		t.Fatalf("expected i2c_timeout, got %v", err)
	}
}

func TestDo_TransportErrorIsClassified(t *testing.T) {
	nack := errors.New("nack")
	o := New("i2c1", &fakeBus{err: nack}, Config{})
	defer o.Close()

	err := o.Tx(0x1A, []byte{0, 0, 1}, nil)
	if !errors.Is(err, errcode.I2CTransactionFailed) {
		t.Fatalf("expected i2c_transaction_failed, got %v", err)
	}
	if !errors.Is(err, nack) {
		t.Fatal("cause lost")
	}
}

func TestDo_CodedErrorsPassThrough(t *testing.T) {
	o := New("i2c0", &fakeBus{}, Config{})
	defer o.Close()
	err := o.Do(0, func(drivers.I2C) error { return errcode.InvalidMode })
	if errcode.Of(err) != errcode.InvalidMode {
		t.Fatalf("got %v", err)
	}
}

func TestDo_AfterClose(t *testing.T) {
	o := New("i2c0", &fakeBus{}, Config{QueueLen: 1})
	o.Close()
	o.Close()
	// With the worker gone the request either fails on quit or times out.
	err := o.Do(20*time.Millisecond, func(drivers.I2C) error { return nil })
	if err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestTx_ReadFillsBuffer(t *testing.T) {
	o := New("i2c0", &fakeBus{}, Config{})
	defer o.Close()
	r := make([]byte, 1)
	if err := o.Tx(0x1A, []byte{0x00, 0x10}, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0xA5 {
		t.Fatalf("read byte = 0x%02X", r[0])
	}
}
