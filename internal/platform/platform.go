// Package platform opens the I²C buses camera links run on.
package platform

import (
	"sort"
	"sync"

	"tinygo.org/x/drivers"
)

// I2CBusFactory resolves a configured bus id to a bus.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// StaticFactory serves a fixed set of buses.
type StaticFactory struct {
	mu    sync.RWMutex
	buses map[string]drivers.I2C
}

func NewStaticFactory(buses map[string]drivers.I2C) *StaticFactory {
	m := make(map[string]drivers.I2C, len(buses))
	for k, v := range buses {
		m[k] = v
	}
	return &StaticFactory{buses: m}
}

func (f *StaticFactory) ByID(id string) (drivers.I2C, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.buses[id]
	return b, ok
}

// IDs lists the served bus ids in order.
func (f *StaticFactory) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.buses))
	for k := range f.buses {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}
