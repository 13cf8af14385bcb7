package config

// -----------------------------------------------------------------------------
// Embedded rig configurations
//
// Key: rig name (same value placed in ctx via WithDevice)
// Val: raw JSON; the "camera" key decodes as types.CameraConfig.
// -----------------------------------------------------------------------------

const cfgMonoISX031 = `{
  "camera": {
    "links": [
      {"id": "csi0", "bus": {"type": "i2c", "id": "i2c1"}}
    ],
    "cameras": [
      {"id": "cam0", "sensor": "isx031", "link": "csi0", "instance": 0,
       "mode": "1920x1536_30fps_yuv", "auto_configure": true}
    ]
  },
  "heartbeat": {"interval": 5},
  "mqtt": {"broker": "tcp://localhost:1883", "prefix": "mipicam/mono"}
}`

const cfgStereoISX031 = `{
  "camera": {
    "links": [
      {"id": "csi0", "bus": {"type": "i2c", "id": "i2c1"}}
    ],
    "cameras": [
      {"id": "left", "sensor": "isx031", "link": "csi0", "instance": 0,
       "mode": "1920x1536_30fps_yuv", "auto_configure": true},
      {"id": "right", "sensor": "isx031", "link": "csi0", "instance": 1,
       "mode": "1920x1536_30fps_yuv", "auto_configure": true}
    ]
  },
  "heartbeat": {"interval": 5},
  "mqtt": {"broker": "tcp://localhost:1883", "prefix": "mipicam/stereo"}
}`

const cfgMonoAR0234 = `{
  "camera": {
    "links": [
      {"id": "csi0", "bus": {"type": "i2c", "id": "i2c1"}}
    ],
    "cameras": [
      {"id": "cam0", "sensor": "ar0234", "link": "csi0", "instance": 0,
       "mode": "1920x1200_raw12_4lane_30fps", "auto_configure": true,
       "timeout_ms": 100}
    ]
  },
  "heartbeat": {"interval": 5},
  "mqtt": {"broker": "tcp://localhost:1883", "prefix": "mipicam/ar0234"}
}`

var embeddedConfigs = map[string][]byte{
	"mono-isx031":   []byte(cfgMonoISX031),
	"stereo-isx031": []byte(cfgStereoISX031),
	"mono-ar0234":   []byte(cfgMonoAR0234),
}
