package types

// StreamStats is published retained on "stream/<name>/stats".
type StreamStats struct {
	Stream     string  `json:"stream"`
	TraceID    string  `json:"trace_id"`
	Frames     uint64  `json:"frames"`
	Degraded   uint64  `json:"degraded"`
	LastReason string  `json:"last_reason,omitempty"`
	FPS        float64 `json:"fps"`
	Running    bool    `json:"running"`
	TS         int64   `json:"ts_ms"`
}
