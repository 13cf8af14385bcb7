package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"i2c_transaction_failed":     I2CTransactionFailed,
		"i2c_timeout":                I2CTimeout,
		"invalid_mode":               InvalidMode,
		"unmapped_mode":              UnmappedMode,
		"unsupported_sensor_version": UnsupportedSensorVersion,
		"not_configured":             NotConfigured,
		"malformed_frame":            MalformedFrame,
		"conversion_failed":          ConversionFailed,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestOfAndIs(t *testing.T) {
	cause := errors.New("nack")
	e := Wrap(I2CTransactionFailed, "write", cause)
	wrapped := fmt.Errorf("sequencer: %w", e)

	if got := Of(wrapped); got != I2CTransactionFailed {
		t.Fatalf("Of = %q", got)
	}
	if !errors.Is(wrapped, I2CTransactionFailed) {
		t.Fatal("errors.Is should match the carried code")
	}
	if errors.Is(wrapped, I2CTimeout) {
		t.Fatal("errors.Is matched the wrong code")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("cause lost")
	}
	if Of(nil) != OK {
		t.Fatal("nil should map to ok")
	}
	if Of(errors.New("x")) != Error {
		t.Fatal("plain error should map to generic error")
	}
	if Of(fmt.Errorf("x: %w", InvalidMode)) != InvalidMode {
		t.Fatal("bare code should survive wrapping")
	}
}

func TestErrorText(t *testing.T) {
	e := &E{C: InvalidMode, Op: "set_mode", Msg: "mode 7"}
	if got := e.Error(); got != "set_mode: invalid_mode: mode 7" {
		t.Fatalf("got %q", got)
	}
}
