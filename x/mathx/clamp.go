package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SaturateU8 clamps f to [0, 255] and truncates toward zero, matching an
// unsigned 8-bit cast of an already clipped float.
func SaturateU8[F constraints.Float](f F) uint8 {
	return uint8(Clamp(f, 0, 255))
}
