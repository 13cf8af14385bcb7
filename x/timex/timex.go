package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// FramePeriod returns the nominal interval between frames at fps.
// fps==0 is coerced to 1 to avoid division by zero.
func FramePeriod(fps uint32) time.Duration {
	if fps == 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// Millis converts a millisecond count carried in register tables and
// JSON payloads to a Duration.
func Millis[T ~int | ~uint8 | ~uint16 | ~uint32 | ~int64](ms T) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
