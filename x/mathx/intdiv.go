package mathx

import "golang.org/x/exp/constraints"

// CeilDiv returns ceil(a/b) for positive integers; b == 0 yields 0.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// RoundUp returns the smallest multiple of align that is >= v.
// align == 0 returns v unchanged.
func RoundUp[T constraints.Unsigned](v, align T) T {
	if align == 0 {
		return v
	}
	return CeilDiv(v, align) * align
}
