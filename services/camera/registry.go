package camera

import (
	"fmt"
	"sort"
	"sync"

	"mipicam-go/drivers/ar0234"
	"mipicam-go/drivers/isx031"
	"mipicam-go/drivers/mipisensor"
)

// ProfileFunc returns a fresh sensor profile.
type ProfileFunc func() mipisensor.Profile

var (
	muSensors sync.RWMutex
	sensors   = map[string]ProfileFunc{}
)

func init() {
	RegisterSensor("isx031", isx031.Profile)
	RegisterSensor("ar0234", ar0234.Profile)
}

// RegisterSensor makes a sensor type available to configs. It panics on
// duplicate registration to catch mistakes at start-up.
func RegisterSensor(sensorType string, fn ProfileFunc) {
	muSensors.Lock()
	defer muSensors.Unlock()
	if sensorType == "" || fn == nil {
		panic("camera: empty sensor registration")
	}
	if _, exists := sensors[sensorType]; exists {
		panic(fmt.Sprintf("camera: sensor already registered for type %q", sensorType))
	}
	sensors[sensorType] = fn
}

// LookupSensor finds a registered sensor type.
func LookupSensor(sensorType string) (ProfileFunc, bool) {
	muSensors.RLock()
	defer muSensors.RUnlock()
	fn, ok := sensors[sensorType]
	return fn, ok
}

// Sensors lists the registered sensor types.
func Sensors() []string {
	muSensors.RLock()
	defer muSensors.RUnlock()
	out := make([]string, 0, len(sensors))
	for k := range sensors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
