package timex

import (
	"testing"
	"time"
)

func TestFramePeriod(t *testing.T) {
	if got := FramePeriod(30); got != time.Second/30 {
		t.Fatalf("30fps: %v", got)
	}
	if got := FramePeriod(0); got != time.Second {
		t.Fatalf("0fps: %v", got)
	}
}

func TestMillis(t *testing.T) {
	if Millis(uint8(200)) != 200*time.Millisecond {
		t.Fatal("Millis")
	}
}
