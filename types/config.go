package types

// Camera configuration supplied on topic "config/camera".

type CameraConfig struct {
	Links   []LinkConfig   `json:"links"`
	Cameras []CameraDevice `json:"cameras"`
}

// LinkConfig is one physical camera link: the I²C bus its sensors share and
// the clock generator program run once before any sensor is configured.
type LinkConfig struct {
	ID    string     `json:"id"`
	Bus   BusRef     `json:"bus"`
	Clock []RegWrite `json:"clock,omitempty"`
}

// CameraDevice is one logical camera on a link.
type CameraDevice struct {
	ID       string `json:"id"`
	Sensor   string `json:"sensor"` // "isx031", "ar0234"
	Link     string `json:"link"`
	Instance int    `json:"instance"`         // index on the link; picks the expander output
	Output   uint8  `json:"output,omitempty"` // explicit expander output bitmask
	Mode     string `json:"mode,omitempty"`   // mode name applied by auto_configure
	// AutoConfigure runs setup_clock and configure{mode} on load.
	AutoConfigure bool   `json:"auto_configure,omitempty"`
	TimeoutMs     uint32 `json:"timeout_ms,omitempty"` // per transaction
	DrainMs       uint32 `json:"drain_ms,omitempty"`
}

// BusRef identifies a bus instance opened by the platform layer.
type BusRef struct {
	Type string `json:"type"` // "i2c"
	ID   string `json:"id"`   // e.g. "/dev/i2c-1", "i2c0"
}

// RegWrite is one register write, or a wait when WaitMs is set.
type RegWrite struct {
	Addr   uint16 `json:"addr"`
	Reg    uint16 `json:"reg"`
	Value  uint8  `json:"value"`
	WaitMs uint32 `json:"wait_ms,omitempty"`
}
