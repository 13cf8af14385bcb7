package camera

// Topic tokens
const (
	TokConfig  = "config"
	TokCamera  = "camera"
	TokState   = "state"
	TokControl = "control"
)

// Control verbs
const (
	CtrlSetupClock  = "setup_clock"
	CtrlConfigure   = "configure"
	CtrlStart       = "start"
	CtrlStop        = "stop"
	CtrlGetRegister = "get_register"
	CtrlSetRegister = "set_register"
)

// Service levels
const (
	LevelIdle    = "idle"
	LevelReady   = "ready"
	LevelError   = "error"
	LevelStopped = "stopped"
)
