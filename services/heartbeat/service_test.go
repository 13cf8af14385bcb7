package heartbeat

import (
	"context"
	"testing"
	"time"

	"mipicam-go/bus"
)

func nextBeat(t *testing.T, sub *bus.Subscription) Beat {
	t.Helper()
	select {
	case m := <-sub.Channel():
		b, ok := m.Payload.(Beat)
		if !ok || !m.Retained {
			t.Fatalf("unexpected heartbeat %#v", m)
		}
		return b
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
		return Beat{}
	}
}

func TestHeartbeat_PublishesAndReconfigures(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb")
	sub := conn.Subscribe(TopicHeartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &Service{Interval: time.Hour}
	_ = s.Start(ctx, conn)

	if first := nextBeat(t, sub); first.Seq != 1 {
		t.Fatalf("first beat seq %d", first.Seq)
	}

	conn.Publish(conn.NewMessage(bus.T("config", "heartbeat"), map[string]any{"interval": 0.01}, true))
	if b := nextBeat(t, sub); b.Seq != 2 {
		t.Fatalf("beat after reconfigure seq %d", b.Seq)
	}
}
