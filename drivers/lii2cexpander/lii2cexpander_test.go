package lii2cexpander

import (
	"bytes"
	"testing"
)

type recBus struct {
	addr uint16
	w    []byte
	rn   int
}

func (b *recBus) Tx(addr uint16, w, r []byte) error {
	b.addr = addr
	b.w = append([]byte(nil), w...)
	b.rn = len(r)
	return nil
}

func TestConfigureWritesSingleByte(t *testing.T) {
	b := &recBus{}
	d := New(b)
	if err := d.Configure(Output2); err != nil {
		t.Fatal(err)
	}
	if b.addr != 0x70 {
		t.Fatalf("addr = 0x%02X", b.addr)
	}
	if !bytes.Equal(b.w, []byte{0b0010}) || b.rn != 0 {
		t.Fatalf("w=%v rn=%d", b.w, b.rn)
	}
}

func TestForInstance(t *testing.T) {
	cases := map[int]Output{0: Output1, 1: Output2, 2: Output1, -1: Output1}
	for in, want := range cases {
		if got := ForInstance(in); got != want {
			t.Fatalf("ForInstance(%d) = %s, want %s", in, got, want)
		}
	}
}
