// Package config publishes a rig's configuration on the bus. Each
// top-level key of the rig's JSON document is published retained on
// config/<key>, so services pick up their section whenever they subscribe.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"mipicam-go/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key carrying the rig name
)

type ctxKey string

// ctxDeviceKey is the typed context key; CtxDeviceKey is its string form.
const ctxDeviceKey ctxKey = CtxDeviceKey

// WithDevice returns ctx carrying the rig name used for lookup.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ctxDeviceKey, device)
}

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Devices lists the embedded rig names.
func Devices() []string {
	out := make([]string, 0, len(embeddedConfigs))
	for k := range embeddedConfigs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type ConfigService struct {
	Name string
	// Raw, when set, is published instead of the embedded config.
	Raw []byte
	Log *slog.Logger
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName, Log: slog.Default()}
}

// LoadFile makes the service publish the JSON document at path.
func (s *ConfigService) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !json.Valid(b) {
		return fmt.Errorf("config: %s is not valid JSON", path)
	}
	s.Raw = b
	return nil
}

func (s *ConfigService) lookup(ctx context.Context) ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	device, _ := ctx.Value(ctxDeviceKey).(string)
	if device == "" {
		return nil, errors.New("missing device ID in context")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no embedded config for device: " + device)
	}
	return raw, nil
}

// publishConfig publishes every top-level key as a retained message.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	raw, err := s.lookup(ctx)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("config is not a JSON object: %w", err)
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			log.Error("config: publish failed", "err", err)
			return
		}
		log.Info("config: published")
	}()
}
