// Package conv formats register addresses and values for logs without fmt.
package conv

const hexd = "0123456789ABCDEF"

// Hex renders v as "0x" followed by digits uppercase hex digits,
// zero-padded. Higher bits than digits can show are dropped.
func Hex(v uint32, digits int) string {
	if digits < 1 {
		digits = 1
	}
	if digits > 8 {
		digits = 8
	}
	var buf [10]byte
	buf[0], buf[1] = '0', 'x'
	for i := digits + 1; i >= 2; i-- {
		buf[i] = hexd[v&0xF]
		v >>= 4
	}
	return string(buf[:digits+2])
}

// Hex8 renders a one-byte register value or 7-bit address: 0x1A.
func Hex8[T ~uint8 | ~uint16](v T) string { return Hex(uint32(v), 2) }

// Hex16 renders a 16-bit register address: 0x301A.
func Hex16(v uint16) string { return Hex(uint32(v), 4) }
