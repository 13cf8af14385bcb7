package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mipicam-go/bus"
	"mipicam-go/services/camera"
	"mipicam-go/types"
)

// collect drains retained config messages until want keys arrived.
func collect(t *testing.T, conn *bus.Connection, want int) map[string]any {
	t.Helper()
	sub := conn.Subscribe(bus.Topic{configPrefix, "#"})
	defer conn.Unsubscribe(sub)

	got := map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < want && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if len(m.Topic) != 2 {
				t.Fatalf("unexpected topic: %#v", m.Topic)
			}
			key, ok := m.Topic[1].(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic[1])
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != want {
		t.Fatalf("expected %d retained messages, got %d (%v)", want, len(got), got)
	}
	return got
}

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "bench" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"region": {"code": "eu"}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	NewConfigService().Start(WithDevice(context.Background(), "bench"), conn)

	got := collect(t, conn, 3)
	if s, ok := got["mode"].(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", got["mode"])
	}
	if v, ok := got["debug"].(bool); !ok || !v {
		t.Fatalf("debug payload = %#v, want true", got["debug"])
	}
	region, ok := got["region"].(map[string]any)
	if !ok || region["code"] != "eu" {
		t.Fatalf("region payload = %#v", got["region"])
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	conn := bus.NewBus(4).NewConnection("test-missing-device")
	if err := NewConfigService().publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	conn := bus.NewBus(4).NewConnection("test-no-config")
	ctx := WithDevice(context.Background(), "unknown-device")
	if err := NewConfigService().publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestConfig_PublishConfig_NotAnObject(t *testing.T) {
	conn := bus.NewBus(4).NewConnection("test-array")
	svc := NewConfigService()
	svc.Raw = []byte(`[1, 2]`)
	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for non-object config")
	}
}

func TestConfig_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rig.json")
	if err := os.WriteFile(path, []byte(`{"camera": {"cameras": []}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := NewConfigService()
	if err := svc.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	conn := bus.NewBus(4).NewConnection("test-file")
	// File contents win over the context lookup.
	svc.Start(context.Background(), conn)
	got := collect(t, conn, 1)
	if _, ok := got["camera"]; !ok {
		t.Fatalf("camera key missing: %v", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte(`{`), 0o644)
	if err := svc.LoadFile(bad); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if err := svc.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEmbeddedRigs_Decode(t *testing.T) {
	if len(Devices()) != 3 {
		t.Fatalf("devices = %v", Devices())
	}
	for _, name := range Devices() {
		t.Run(name, func(t *testing.T) {
			var doc struct {
				Camera types.CameraConfig `json:"camera"`
			}
			raw, _ := EmbeddedConfigLookup(name)
			if err := json.Unmarshal(raw, &doc); err != nil {
				t.Fatal(err)
			}
			if len(doc.Camera.Links) == 0 || len(doc.Camera.Cameras) == 0 {
				t.Fatalf("empty camera config: %+v", doc.Camera)
			}
			links := map[string]bool{}
			for _, l := range doc.Camera.Links {
				links[l.ID] = true
			}
			for _, c := range doc.Camera.Cameras {
				if !links[c.Link] {
					t.Errorf("%s: unknown link %q", c.ID, c.Link)
				}
				profile, ok := camera.LookupSensor(c.Sensor)
				if !ok {
					t.Errorf("%s: unknown sensor %q", c.ID, c.Sensor)
					continue
				}
				if _, ok := profile().ModeByName(c.Mode); !ok {
					t.Errorf("%s: unknown mode %q", c.ID, c.Mode)
				}
			}
		})
	}
}
