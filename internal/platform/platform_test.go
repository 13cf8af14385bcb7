package platform

import (
	"errors"
	"testing"

	"mipicam-go/drivers/lii2cexpander"

	"tinygo.org/x/drivers"
)

func TestHostI2C_RegistersPerOutput(t *testing.T) {
	h := NewHostI2C()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(h.Tx(lii2cexpander.Address, []byte{0b0001}, nil))
	must(h.Tx(0x1A, []byte{0x30, 0x1A, 0x11}, nil))
	must(h.Tx(lii2cexpander.Address, []byte{0b0010}, nil))
	must(h.Tx(0x1A, []byte{0x30, 0x1A, 0x22}, nil))

	if v, ok := h.Register(0b0001, 0x1A, 0x301A); !ok || v != 0x11 {
		t.Fatalf("output1 reg = %#x,%v", v, ok)
	}
	if v, _ := h.Register(0b0010, 0x1A, 0x301A); v != 0x22 {
		t.Fatalf("output2 reg = %#x", v)
	}

	r := make([]byte, 1)
	must(h.Tx(0x1A, []byte{0x30, 0x1A}, r))
	if r[0] != 0x22 {
		t.Fatalf("read %#x", r[0])
	}
	txs := h.Txs()
	if len(txs) != 5 || txs[4].Output != 0b0010 || txs[4].Rn != 1 {
		t.Fatalf("txs=%+v", txs)
	}
	h.Reset()
	if len(h.Txs()) != 0 {
		t.Fatal("log not cleared")
	}
}

func TestHostI2C_Fail(t *testing.T) {
	h := NewHostI2C()
	boom := errors.New("nak")
	h.Fail = func(addr uint16, _ []byte) error {
		if addr == 0x18 {
			return boom
		}
		return nil
	}
	if err := h.Tx(0x18, []byte{0, 1, 2}, nil); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if _, ok := h.Register(0, 0x18, 0x0001); ok {
		t.Fatal("failed write took effect")
	}
}

func TestStaticFactory(t *testing.T) {
	f := NewStaticFactory(map[string]drivers.I2C{"i2c1": NewHostI2C(), "i2c0": NewHostI2C()})
	if _, ok := f.ByID("i2c0"); !ok {
		t.Fatal("i2c0 missing")
	}
	if _, ok := f.ByID("i2c9"); ok {
		t.Fatal("unknown bus resolved")
	}
	if ids := f.IDs(); len(ids) != 2 || ids[0] != "i2c0" {
		t.Fatalf("ids=%v", ids)
	}
}
