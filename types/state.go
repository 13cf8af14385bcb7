package types

// ------------------------
// Camera service state (retained on "camera/state")
// ------------------------

type ServiceState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // short code
	TS     int64  `json:"ts_ms"`
}

// ------------------------
// Per-camera state (retained on "camera/<id>/state")
// ------------------------

type CameraLevel string

const (
	CameraIdle       CameraLevel = "idle"
	CameraConfigured CameraLevel = "configured"
	CameraStreaming  CameraLevel = "streaming"
	CameraStopped    CameraLevel = "stopped"
	CameraError      CameraLevel = "error"
)

type CameraState struct {
	Level       CameraLevel  `json:"level"`
	Sensor      string       `json:"sensor"`
	Link        string       `json:"link"`
	Output      string       `json:"output"`
	Mode        string       `json:"mode,omitempty"`
	Width       uint32       `json:"width,omitempty"`
	Height      uint32       `json:"height,omitempty"`
	Framerate   uint32       `json:"framerate,omitempty"`
	PixelFormat string       `json:"pixel_format,omitempty"`
	Layout      *FrameLayout `json:"layout,omitempty"`
	Error       string       `json:"error,omitempty"` // errcode of the last failed verb
	TS          int64        `json:"ts_ms"`
}

// FrameLayout tells a frame reader where pixels start in a received frame.
type FrameLayout struct {
	StartByte         uint32 `json:"start_byte"`
	ReceivedLineBytes uint32 `json:"received_line_bytes"`
}

// ------------------------
// Control payloads ("camera/<id>/control/<verb>")
// ------------------------

type ConfigureRequest struct {
	Mode string `json:"mode"`
}

type RegisterGet struct {
	Addr uint16 `json:"addr"`
	Reg  uint16 `json:"reg"`
}

type RegisterSet struct {
	Addr      uint16 `json:"addr"`
	Reg       uint16 `json:"reg"`
	Value     uint8  `json:"value"`
	TimeoutMs uint32 `json:"timeout_ms,omitempty"`
}

type RegisterValue struct {
	Addr  uint16 `json:"addr"`
	Reg   uint16 `json:"reg"`
	Value uint8  `json:"value"`
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
