package mathx

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Fatalf("Clamp hi: %d", got)
	}
	if got := Clamp(-1, 0, 3); got != 0 {
		t.Fatalf("Clamp lo: %d", got)
	}
	if got := Clamp(2, 3, 0); got != 2 {
		t.Fatalf("Clamp swapped bounds: %d", got)
	}
}

func TestSaturateU8(t *testing.T) {
	cases := []struct {
		in   float32
		want uint8
	}{
		{-12.5, 0},
		{0, 0},
		{234.99, 234},
		{235, 235},
		{255, 255},
		{400.2, 255},
	}
	for _, c := range cases {
		if got := SaturateU8(c.in); got != c.want {
			t.Fatalf("SaturateU8(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestCeilDivRoundUp(t *testing.T) {
	if CeilDiv[uint32](10, 4) != 3 || CeilDiv[uint32](8, 4) != 2 || CeilDiv[uint32](1, 0) != 0 {
		t.Fatal("CeilDiv")
	}
	if RoundUp[uint32](2400, 64) != 2432 || RoundUp[uint32](3840, 64) != 3840 || RoundUp[uint32](7, 0) != 7 {
		t.Fatal("RoundUp")
	}
}
