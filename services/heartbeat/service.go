// Package heartbeat publishes a retained liveness beacon on
// system/heartbeat. The interval comes from config/heartbeat:
//
//	{"interval": 5}
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"mipicam-go/bus"
	"mipicam-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	TopicHeartbeat       = bus.Topic{"system", "heartbeat"}
)

// Beat is the heartbeat payload.
type Beat struct {
	Seq     uint64 `json:"seq"`
	UptimeS int64  `json:"uptime_s"`
	TS      int64  `json:"ts_ms"`
}

type Service struct {
	Interval time.Duration // default 1s
	Log      *slog.Logger
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	start := time.Now()
	var seq uint64
	beat := func() {
		seq++
		conn.Publish(conn.NewMessage(TopicHeartbeat, Beat{
			Seq:     seq,
			UptimeS: int64(time.Since(start) / time.Second),
			TS:      timex.NowMs(),
		}, true))
	}
	beat()

	for {
		select {
		case <-ctx.Done():
			log.Info("heartbeat: stopping", "beats", seq)
			return
		case <-tick.C:
			beat()
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"].(float64); ok && iv > 0 {
					d := time.Duration(iv * float64(time.Second))
					tick.Reset(d)
					log.Info("heartbeat: interval set", "interval", d)
				}
			}
		}
	}
}

// Start runs the heartbeat until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
