package conv

import "testing"

func TestHex(t *testing.T) {
	cases := []struct {
		v      uint32
		digits int
		want   string
	}{
		{0x1A, 2, "0x1A"},
		{0x5, 2, "0x05"},
		{0x301A, 4, "0x301A"},
		{0x1301A, 4, "0x301A"},
		{0xDEADBEEF, 8, "0xDEADBEEF"},
		{0xF, 0, "0xF"},
		{0x1, 12, "0x00000001"},
	}
	for _, c := range cases {
		if got := Hex(c.v, c.digits); got != c.want {
			t.Errorf("Hex(0x%X, %d) = %q, want %q", c.v, c.digits, got, c.want)
		}
	}
	if Hex8(uint8(0x70)) != "0x70" || Hex8(uint16(0x18)) != "0x18" || Hex16(0xABEE) != "0xABEE" {
		t.Fatal("typed helpers")
	}
}
