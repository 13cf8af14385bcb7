package errcode

import "errors"

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	Busy           Code = "busy"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	InvalidTopic   Code = "invalid_topic"
	UnknownCamera  Code = "unknown_camera"
	UnknownSensor  Code = "unknown_sensor"
	UnknownBus     Code = "unknown_bus"
	Timeout        Code = "timeout"

	// Transport. Never retried below the caller.
	I2CTransactionFailed Code = "i2c_transaction_failed"
	I2CTimeout           Code = "i2c_timeout"

	// Configuration time; fatal to the call that raised them.
	InvalidMode              Code = "invalid_mode"
	UnmappedMode             Code = "unmapped_mode"
	UnsupportedSensorVersion Code = "unsupported_sensor_version"
	NotConfigured            Code = "not_configured"

	// Conversion time; surfaced only as a degraded frame reason.
	MalformedFrame   Code = "malformed_frame"
	ConversionFailed Code = "conversion_failed"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.X) match on the carried code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E. A nil cause is allowed.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// New builds an *E carrying a message and no cause.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
