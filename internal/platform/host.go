package platform

import (
	"sync"

	"mipicam-go/drivers/lii2cexpander"
)

// HostI2C is an in-memory I²C bus with an expander and register-addressed
// devices behind it. It follows the camera wire format: a 1-byte write to
// the expander selects outputs, a 3-byte write sets a register and a
// 2-byte write with a 1-byte read gets one. Devices behind different
// outputs may share an address.
type HostI2C struct {
	mu     sync.Mutex
	output uint8
	regs   map[hostKey]uint8
	txs    []HostTx

	// Fail, when set, can reject a transaction before it takes effect.
	Fail func(addr uint16, w []byte) error
}

// HostTx is one recorded transaction.
type HostTx struct {
	Addr   uint16
	W      []byte
	Rn     int
	Output uint8 // expander selection at the time of the transaction
}

type hostKey struct {
	output uint8
	addr   uint16
	reg    uint16
}

func NewHostI2C() *HostI2C {
	return &HostI2C{regs: map[hostKey]uint8{}}
}

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.txs = append(h.txs, HostTx{Addr: addr, W: append([]byte(nil), w...), Rn: len(r), Output: h.output})
	if h.Fail != nil {
		if err := h.Fail(addr, w); err != nil {
			return err
		}
	}
	switch {
	case addr == lii2cexpander.Address && len(w) == 1:
		h.output = w[0]
	case len(w) == 3:
		h.regs[hostKey{h.output, addr, uint16(w[0])<<8 | uint16(w[1])}] = w[2]
	case len(w) == 2 && len(r) == 1:
		r[0] = h.regs[hostKey{h.output, addr, uint16(w[0])<<8 | uint16(w[1])}]
	}
	return nil
}

// SetRegister seeds a register of the device at addr behind output.
// Output 0 addresses devices that sit directly on the bus.
func (h *HostI2C) SetRegister(output uint8, addr, reg uint16, v uint8) {
	h.mu.Lock()
	h.regs[hostKey{output, addr, reg}] = v
	h.mu.Unlock()
}

// Register returns a register value and whether it was ever written.
func (h *HostI2C) Register(output uint8, addr, reg uint16) (uint8, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.regs[hostKey{output, addr, reg}]
	return v, ok
}

// Txs returns a copy of the transaction log.
func (h *HostI2C) Txs() []HostTx {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HostTx(nil), h.txs...)
}

// Reset clears the transaction log.
func (h *HostI2C) Reset() {
	h.mu.Lock()
	h.txs = nil
	h.mu.Unlock()
}
