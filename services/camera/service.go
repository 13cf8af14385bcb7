// Package camera is the bus-driven camera control service. It builds
// sensor controllers from the config published on config/camera and
// exposes their lifecycle as control verbs:
//
//	camera/<id>/control/setup_clock
//	camera/<id>/control/configure    {"mode": "<name>"}
//	camera/<id>/control/start
//	camera/<id>/control/stop
//	camera/<id>/control/get_register {"addr": 26, "reg": 12288}
//	camera/<id>/control/set_register {"addr": 26, "reg": 12288, "value": 1}
//
// Each camera's state is published retained on camera/<id>/state and the
// service's own on camera/state.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mipicam-go/bus"
	"mipicam-go/drivers/csi"
	"mipicam-go/drivers/lii2cexpander"
	"mipicam-go/drivers/mipisensor"
	"mipicam-go/drivers/regtable"
	"mipicam-go/errcode"
	"mipicam-go/internal/i2cbus"
	"mipicam-go/internal/platform"
	"mipicam-go/types"
	"mipicam-go/x/timex"
)

var (
	topicConfig = bus.Topic{TokConfig, TokCamera}
	topicCtrl   = bus.Topic{TokCamera, "+", TokControl, "+"}
	topicState  = bus.Topic{TokCamera, TokState}
)

// StateTopic is where camera id publishes its retained state.
func StateTopic(id string) bus.Topic { return bus.Topic{TokCamera, id, TokState} }

// ControlTopic addresses verb on camera id.
func ControlTopic(id, verb string) bus.Topic { return bus.Topic{TokCamera, id, TokControl, verb} }

type Options struct {
	// Receiver locates pixels in received frames. Default csi.DefaultReceiver.
	Receiver csi.Receiver
	// QueueLen bounds each camera's job queue. Default 8.
	QueueLen int
	// BusTimeout is the default per-transaction timeout. Default 250 ms.
	BusTimeout time.Duration
	// Sleep overrides settling waits; tests use it to skip them.
	Sleep  regtable.Sleeper
	Logger *slog.Logger
}

type camEntry struct {
	cfg    types.CameraDevice
	ctrl   *mipisensor.Controller
	worker *camWorker
}

type Service struct {
	conn  *bus.Connection
	buses platform.I2CBusFactory
	opts  Options
	log   *slog.Logger

	owners  map[string]*i2cbus.Owner    // bus id -> worker
	links   map[string]*mipisensor.Link // link id -> link
	linkBus map[string]string           // link id -> bus id
	cams    map[string]*camEntry
	results chan result
}

func New(conn *bus.Connection, buses platform.I2CBusFactory, opts Options) *Service {
	if opts.Receiver.LineAlign == 0 {
		opts.Receiver = csi.DefaultReceiver()
	}
	if opts.BusTimeout <= 0 {
		opts.BusTimeout = 250 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		conn:    conn,
		buses:   buses,
		opts:    opts,
		log:     log,
		owners:  map[string]*i2cbus.Owner{},
		links:   map[string]*mipisensor.Link{},
		linkBus: map[string]string{},
		cams:    map[string]*camEntry{},
		results: make(chan result, 32),
	}
}

// Run serves config and control messages until ctx ends. Sensors still
// streaming at shutdown are stopped.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	ctrlSub := s.conn.Subscribe(topicCtrl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState(LevelIdle, "awaiting_config")

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			s.publishState(LevelStopped, "context_cancelled")
			return

		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.shutdown()
				s.publishState(LevelError, "config_subscription_closed")
				return
			}
			var cfg types.CameraConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.log.Error("camera: config decode failed", "err", err)
				s.publishState(LevelError, "config_decode_failed")
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				s.log.Error("camera: apply config failed", "err", err)
				s.publishState(LevelError, string(errcode.Of(err)))
				continue
			}
			s.publishState(LevelReady, "configured")

		case msg, ok := <-ctrlSub.Channel():
			if !ok {
				s.shutdown()
				s.publishState(LevelError, "control_subscription_closed")
				return
			}
			s.handleControl(msg)

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *Service) applyConfig(cfg types.CameraConfig) error {
	for _, lc := range cfg.Links {
		if err := s.ensureLink(lc); err != nil {
			return err
		}
	}

	seen := map[string]struct{}{}
	for _, d := range cfg.Cameras {
		seen[d.ID] = struct{}{}
		if _, exists := s.cams[d.ID]; exists {
			continue
		}
		ent, err := s.buildCamera(d)
		if err != nil {
			return fmt.Errorf("camera %q: %w", d.ID, err)
		}
		s.cams[d.ID] = ent
		s.log.Info("camera: added", "camera", d.ID, "sensor", d.Sensor, "link", d.Link, "output", ent.ctrl.Output().String())
		s.publishIdle(d.ID, ent)

		if d.AutoConfigure {
			ent.worker.Submit(job{verb: CtrlSetupClock})
			ent.worker.Submit(job{verb: CtrlConfigure, arg: types.ConfigureRequest{Mode: d.Mode}})
		}
	}

	for id, ent := range s.cams {
		if _, ok := seen[id]; ok {
			continue
		}
		s.removeCamera(id, ent)
	}
	return nil
}

func (s *Service) ensureLink(lc types.LinkConfig) error {
	if lc.ID == "" {
		return errcode.New(errcode.InvalidParams, "link", "missing id")
	}
	if _, ok := s.links[lc.ID]; ok {
		return nil
	}
	if lc.Bus.Type != "" && lc.Bus.Type != "i2c" {
		return errcode.New(errcode.InvalidParams, "link "+lc.ID, "unsupported bus type "+lc.Bus.Type)
	}
	owner, ok := s.owners[lc.Bus.ID]
	if !ok {
		hw, ok := s.buses.ByID(lc.Bus.ID)
		if !ok {
			return errcode.New(errcode.UnknownBus, "link "+lc.ID, lc.Bus.ID)
		}
		owner = i2cbus.New(lc.Bus.ID, hw, i2cbus.Config{DefaultTimeout: s.opts.BusTimeout})
		s.owners[lc.Bus.ID] = owner
	}
	s.links[lc.ID] = mipisensor.NewLink(lc.ID, owner, clockTable(lc.Clock), s.log)
	s.linkBus[lc.ID] = lc.Bus.ID
	return nil
}

func clockTable(ws []types.RegWrite) regtable.Table {
	t := make(regtable.Table, 0, len(ws))
	for _, w := range ws {
		if w.WaitMs > 0 {
			t = append(t, regtable.WaitMs(w.WaitMs))
			continue
		}
		t = append(t, regtable.Write(w.Addr, w.Reg, w.Value))
	}
	return t
}

func (s *Service) buildCamera(d types.CameraDevice) (*camEntry, error) {
	if d.ID == "" {
		return nil, errcode.New(errcode.InvalidParams, "camera", "missing id")
	}
	profile, ok := LookupSensor(d.Sensor)
	if !ok {
		return nil, errcode.New(errcode.UnknownSensor, "camera", d.Sensor)
	}
	link, ok := s.links[d.Link]
	if !ok {
		return nil, errcode.New(errcode.InvalidParams, "camera", "unknown link "+d.Link)
	}
	ctrl, err := mipisensor.New(link, profile(), mipisensor.Config{
		Instance:    d.Instance,
		Output:      lii2cexpander.Output(d.Output),
		Timeout:     timeoutOr(d.TimeoutMs, s.opts.BusTimeout),
		DrainPeriod: timeoutOr(d.DrainMs, 100*time.Millisecond),
		Sleep:       s.opts.Sleep,
		Logger:      s.log.With("camera", d.ID),
	})
	if err != nil {
		return nil, err
	}
	return &camEntry{
		cfg:    d,
		ctrl:   ctrl,
		worker: newCamWorker(d.ID, ctrl, s.opts.Receiver, d.Mode, s.opts.QueueLen, s.results),
	}, nil
}

func (s *Service) removeCamera(id string, ent *camEntry) {
	ent.worker.Close()
	if ent.ctrl.Running() {
		if err := ent.ctrl.Stop(); err != nil {
			s.log.Error("camera: stop on remove", "camera", id, "err", err)
		}
	}
	delete(s.cams, id)
	s.pubRet(StateTopic(id), nil)
	s.log.Info("camera: removed", "camera", id)
}

func (s *Service) shutdown() {
	for id, ent := range s.cams {
		ent.worker.Close()
		if ent.ctrl.Running() {
			if err := ent.ctrl.Stop(); err != nil {
				s.log.Error("camera: stop on shutdown", "camera", id, "err", err)
			}
		}
		s.publishIdle(id, ent)
	}
	for id, o := range s.owners {
		o.Close()
		delete(s.owners, id)
	}
}

// -----------------------------------------------------------------------------
// Control
// -----------------------------------------------------------------------------

func (s *Service) handleControl(msg *bus.Message) {
	// camera/<id>/control/<verb>
	if len(msg.Topic) != 4 {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	id, _ := msg.Topic[1].(string)
	verb, _ := msg.Topic[3].(string)
	ent, ok := s.cams[id]
	if !ok {
		s.replyErr(msg, errcode.UnknownCamera)
		return
	}
	switch verb {
	case CtrlSetupClock, CtrlConfigure, CtrlStart, CtrlStop, CtrlGetRegister, CtrlSetRegister:
	default:
		s.replyErr(msg, errcode.Unsupported)
		return
	}
	if !ent.worker.Submit(job{verb: verb, msg: msg, arg: msg.Payload}) {
		s.replyErr(msg, errcode.Busy)
	}
}

func (s *Service) handleResult(r result) {
	ent, ok := s.cams[r.camID]
	if !ok {
		return
	}
	if r.err != nil {
		s.log.Error("camera: control failed", "camera", r.camID, "verb", r.verb, "err", r.err)
		s.replyErr(r.msg, errcode.Of(r.err))
	} else {
		s.log.Info("camera: control done", "camera", r.camID, "verb", r.verb, "state", r.status.State.String())
		if r.msg != nil {
			s.conn.Reply(r.msg, r.reply, false)
		}
	}
	switch r.verb {
	case CtrlGetRegister, CtrlSetRegister:
		if r.err == nil {
			return
		}
	}
	s.publishCamera(r.camID, ent, r.status, r.layout, r.err)
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

// publishCamera does not take the controller lock; st and layout come from
// the worker.
func (s *Service) publishCamera(id string, ent *camEntry, st mipisensor.Status, layout *types.FrameLayout, err error) {
	s.pubRet(StateTopic(id), stateOf(ent.ctrl, st, layout, err))
}

// publishIdle reads the controller directly. Only call it while the
// camera's worker has no job in flight.
func (s *Service) publishIdle(id string, ent *camEntry) {
	st := ent.ctrl.Status()
	s.publishCamera(id, ent, st, layoutOf(ent.ctrl, st, s.opts.Receiver), nil)
}

func (s *Service) publishState(level, status string) {
	s.pubRet(topicState, types.ServiceState{Level: level, Status: status, TS: timex.NowMs()})
}

func (s *Service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

func (s *Service) replyErr(m *bus.Message, code errcode.Code) {
	if m == nil || len(m.ReplyTo) == 0 {
		return
	}
	if code == "" {
		code = errcode.Error
	}
	s.conn.Reply(m, types.ErrorReply{OK: false, Error: string(code)}, false)
}
