// Package mqttbridge mirrors camera state, stream statistics and snapshots
// from the local bus to an MQTT broker.
//
// It listens for JSON config on {"config","mqtt"}; every new config
// replaces the running link. Bus topic camera/left/state is published as
// <prefix>/camera/left/state with its retained flag kept. Byte payloads
// (JPEG snapshots) go out base64 encoded, everything else as JSON.
package mqttbridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mipicam-go/bus"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON document expected on "config/mqtt".
type Config struct {
	Broker   string `json:"broker"` // e.g. "tcp://localhost:1883"
	ClientID string `json:"client_id,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	QoS      byte   `json:"qos,omitempty"`
	// Forward lists bus topic patterns, "/"-separated with + and # wildcards.
	Forward []string `json:"forward,omitempty"`
	// PublishTimeoutMs bounds each broker acknowledgement. Default 2000.
	PublishTimeoutMs int `json:"publish_timeout_ms,omitempty"`
	// MaxFailures consecutive publish failures drop the link. Default 3.
	MaxFailures int `json:"max_failures,omitempty"`
}

// DefaultForward is used when Config.Forward is empty.
var DefaultForward = []string{
	"camera/state",
	"camera/+/state",
	"stream/+/stats",
	"stream/+/snapshot",
	"system/heartbeat",
}

func (c *Config) defaults() {
	if c.ClientID == "" {
		c.ClientID = "mipicam"
	}
	if c.Prefix == "" {
		c.Prefix = "mipicam"
	}
	if len(c.Forward) == 0 {
		c.Forward = DefaultForward
	}
	if c.PublishTimeoutMs <= 0 {
		c.PublishTimeoutMs = 2000
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 3
	}
}

// -----------------------------------------------------------------------------
// Broker client
// -----------------------------------------------------------------------------

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Dialer opens a broker connection for cfg.
type Dialer func(ctx context.Context, cfg Config) (Client, error)

// PahoDial connects with the Eclipse Paho client.
func PahoDial(ctx context.Context, cfg Config) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker not set")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(2 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqttbridge: connection lost, reconnecting", "broker", cfg.Broker, "err", err)
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	wait := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		wait = time.Until(dl)
	}
	if !tok.WaitTimeout(wait) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Options struct {
	Dial   Dialer // default PahoDial
	Logger *slog.Logger
}

type Service struct {
	conn       *bus.Connection
	dial       Dialer
	log        *slog.Logger
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	wg     sync.WaitGroup
}

// Start runs the bridge until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection, opts Options) {
	New(conn, opts).Run(ctx)
}

func New(conn *bus.Connection, opts Options) *Service {
	if opts.Dial == nil {
		opts.Dial = PahoDial
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		conn:       conn,
		dial:       opts.Dial,
		log:        opts.Logger,
		stateTopic: bus.Topic{"mqtt", "state"},
	}
}

func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "mqtt"})
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			s.wg.Wait()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.stopCurrent()
				s.wg.Wait()
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			cfg.defaults()
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.stopCurrent()
	s.wg.Wait()

	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.curRun = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLink(ctx, cfg)
	}()
}

// -----------------------------------------------------------------------------
// Link supervision and forwarding
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	patterns := make([]bus.Topic, 0, len(cfg.Forward))
	for _, f := range cfg.Forward {
		patterns = append(patterns, ParseTopic(f))
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		client, err := s.dial(ctx, cfg)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		s.log.Info("mqttbridge: link up", "broker", cfg.Broker, "prefix", cfg.Prefix)
		err = s.forward(ctx, client, cfg, patterns)
		client.Disconnect(250)
		if err == nil {
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// forward copies matching bus messages to the broker until ctx ends or
// cfg.MaxFailures publishes in a row fail. Retained messages are replayed
// by the bus on subscribe, so a fresh link starts with current state.
func (s *Service) forward(ctx context.Context, c Client, cfg Config, patterns []bus.Topic) error {
	in := make(chan *bus.Message, 64)
	subs := make([]*bus.Subscription, 0, len(patterns))
	for _, p := range patterns {
		sub := s.conn.Subscribe(p)
		subs = append(subs, sub)
		go pump(ctx, sub, in)
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	timeout := time.Duration(cfg.PublishTimeoutMs) * time.Millisecond
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-in:
			topic := MQTTTopic(cfg.Prefix, m.Topic)
			payload, err := encodePayload(m.Payload)
			if err != nil {
				s.log.Warn("mqttbridge: payload not encodable", "topic", topic, "err", err)
				continue
			}
			if err := publish(c, topic, cfg.QoS, m.Retained, payload, timeout); err != nil {
				failures++
				s.log.Warn("mqttbridge: publish failed", "topic", topic, "err", err, "failures", failures)
				if failures >= cfg.MaxFailures {
					return err
				}
				continue
			}
			failures = 0
			s.log.Debug("mqttbridge: forwarded", "topic", topic, "size", len(payload))
		}
	}
}

func pump(ctx context.Context, sub *bus.Subscription, out chan<- *bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}

func publish(c Client, topic string, qos byte, retained bool, payload []byte, timeout time.Duration) error {
	tok := c.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return tok.Error()
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

// ParseTopic splits a "/"-separated pattern into bus tokens.
func ParseTopic(s string) bus.Topic {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	t := make(bus.Topic, len(parts))
	for i, p := range parts {
		t[i] = p
	}
	return t
}

// MQTTTopic renders a bus topic under prefix.
func MQTTTopic(prefix string, t bus.Topic) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(prefix, "/"))
	for _, tok := range t {
		if sb.Len() > 0 {
			sb.WriteByte('/')
		}
		fmt.Fprint(&sb, tok)
	}
	return sb.String()
}

// encodePayload renders a bus payload for the wire. A nil payload is an
// empty message, which clears a retained topic on the broker.
func encodePayload(p any) ([]byte, error) {
	switch v := p.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		out := make([]byte, base64.StdEncoding.EncodedLen(len(v)))
		base64.StdEncoding.Encode(out, v)
		return out, nil
	default:
		return json.Marshal(v)
	}
}

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		err := json.Unmarshal(v, &cfg)
		return cfg, err
	case string:
		err := json.Unmarshal([]byte(v), &cfg)
		return cfg, err
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		err = json.Unmarshal(b, &cfg)
		return cfg, err
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level, // "up", "degraded", "error", "idle"
		"status": status,
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
