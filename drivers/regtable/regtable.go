// Package regtable holds register tables: ordered, declarative lists of
// sensor register writes and settling waits.
//
// A Table is executed strictly in order. Order encodes hardware sequencing
// and must never be changed or parallelised:
//
//	err := regtable.Run(dev, profile.Start, time.Sleep)
//
// Tables are package-level values shared by every sensor instance and must
// be treated as read-only.
package regtable

import (
	"fmt"
	"time"
)

// Op tags an Entry as a register write or a settling wait.
type Op uint8

const (
	OpWrite Op = iota
	OpWait
)

// Entry is one table step. Addr, Reg and Value are used by OpWrite;
// Delay by OpWait.
type Entry struct {
	Op    Op
	Addr  uint16 // 7-bit I²C device address
	Reg   uint16 // 16-bit register address
	Value uint8
	Delay time.Duration
}

// Write returns a register write step.
func Write(addr, reg uint16, value uint8) Entry {
	return Entry{Op: OpWrite, Addr: addr, Reg: reg, Value: value}
}

// WaitMs returns a settling wait of ms milliseconds.
func WaitMs(ms uint32) Entry {
	return Entry{Op: OpWait, Delay: time.Duration(ms) * time.Millisecond}
}

func (e Entry) String() string {
	if e.Op == OpWait {
		return fmt.Sprintf("wait %v", e.Delay)
	}
	return fmt.Sprintf("0x%02X[0x%04X]=0x%02X", e.Addr, e.Reg, e.Value)
}

// Table is an ordered register sequence.
type Table []Entry

// Writes counts the register writes in t.
func (t Table) Writes() int {
	n := 0
	for _, e := range t {
		if e.Op == OpWrite {
			n++
		}
	}
	return n
}

// TotalDelay sums every wait in t.
func (t Table) TotalDelay() time.Duration {
	var d time.Duration
	for _, e := range t {
		if e.Op == OpWait {
			d += e.Delay
		}
	}
	return d
}

// Writer performs one register write with no read-back.
type Writer interface {
	WriteRegister(addr, reg uint16, value uint8) error
}

// Sleeper blocks the caller for d. time.Sleep is the production value.
type Sleeper func(d time.Duration)

// Run executes t against w. Waits block the calling goroutine. The first
// failing write aborts the table; entries already applied stay applied.
// The returned error wraps the writer's error.
func Run(w Writer, t Table, sleep Sleeper) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	for i, e := range t {
		switch e.Op {
		case OpWait:
			sleep(e.Delay)
		case OpWrite:
			if err := w.WriteRegister(e.Addr, e.Reg, e.Value); err != nil {
				return fmt.Errorf("regtable: entry %d/%d %s: %w", i, len(t), e, err)
			}
		default:
			return fmt.Errorf("regtable: entry %d/%d: unknown op %d", i, len(t), e.Op)
		}
	}
	return nil
}
