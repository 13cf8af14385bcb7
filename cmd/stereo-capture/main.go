// Command stereo-capture brings up the cameras of a rig over I²C, streams
// their frames through the UYVY converter and saves the first N frames of
// each camera as PNG files.
//
//	stereo-capture -rig stereo-isx031 -out ./frames -frames 10
//	stereo-capture -config rig.json -left left.uyvy -right right.uyvy
//
// Without a frame source for a camera a colour bar pattern is streamed.
// -bus host runs the whole control path against an in-memory bus.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"mipicam-go/bus"
	"mipicam-go/drivers/ar0234"
	"mipicam-go/frame"
	"mipicam-go/internal/platform"
	"mipicam-go/services/camera"
	"mipicam-go/services/config"
	"mipicam-go/services/framesink"
	"mipicam-go/services/framesink/cvsink"
	"mipicam-go/services/heartbeat"
	"mipicam-go/services/mqttbridge"
	"mipicam-go/services/pipeline"
	"mipicam-go/types"
	"mipicam-go/x/shmring"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

const (
	readyTimeout = 5 * time.Second
	verbTimeout  = 3 * time.Second
)

type options struct {
	rig        string
	configPath string
	busKind    string
	speedKHz   int
	out        string
	frames     uint64
	sources    map[string]string
	snapEvery  uint64
	mqtt       bool
	level      string
}

func parseFlags() options {
	var o options
	var left, right, inputs string
	flag.StringVar(&o.rig, "rig", "stereo-isx031", "embedded rig: "+strings.Join(config.Devices(), ", "))
	flag.StringVar(&o.configPath, "config", "", "rig JSON file; overrides -rig")
	flag.StringVar(&o.busKind, "bus", "periph", "I²C backend: periph or host")
	flag.IntVar(&o.speedKHz, "i2c-khz", 400, "I²C clock in kHz for periph buses; 0 keeps the current clock")
	flag.StringVar(&o.out, "out", "frames", "output directory, one subdirectory per camera")
	flag.Uint64Var(&o.frames, "frames", 10, "frames to save per camera; 0 runs until interrupted")
	flag.StringVar(&left, "left", "", "raw UYVY frame source for camera \"left\" (file, or - for stdin)")
	flag.StringVar(&right, "right", "", "raw UYVY frame source for camera \"right\"")
	flag.StringVar(&inputs, "inputs", "", "comma separated camera=path frame sources")
	flag.Uint64Var(&o.snapEvery, "snapshot-every", 30, "publish every Nth frame as a JPEG snapshot; 0 disables")
	flag.BoolVar(&o.mqtt, "mqtt", false, "bridge state and stats to the rig's MQTT broker")
	flag.StringVar(&o.level, "log", "info", "log level: debug, info, warn, error")
	flag.Parse()

	o.sources = map[string]string{}
	if left != "" {
		o.sources["left"] = left
	}
	if right != "" {
		o.sources["right"] = right
	}
	for _, kv := range strings.Split(inputs, ",") {
		if id, path, ok := strings.Cut(kv, "="); ok {
			o.sources[strings.TrimSpace(id)] = strings.TrimSpace(path)
		}
	}
	return o
}

func main() {
	o := parseFlags()

	var level slog.Level
	if err := level.UnmarshalText([]byte(o.level)); err != nil {
		fmt.Fprintln(os.Stderr, "bad -log:", err)
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("stereo-capture failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, log *slog.Logger) error {
	cfgSvc := config.NewConfigService()
	cfgSvc.Log = log
	if o.configPath != "" {
		if err := cfgSvc.LoadFile(o.configPath); err != nil {
			return err
		}
	}
	rig, err := rigConfig(cfgSvc, o.rig)
	if err != nil {
		return err
	}

	buses, closeBuses, err := openBuses(o, log)
	if err != nil {
		return err
	}
	defer closeBuses()

	b := bus.NewBus(64)
	svcCtx, cancelSvc := context.WithCancel(ctx)
	defer cancelSvc()

	camDone := make(chan struct{})
	camSvc := camera.New(b.NewConnection("camera"), buses, camera.Options{Logger: log})
	go func() {
		camSvc.Run(svcCtx)
		close(camDone)
	}()
	_ = (&heartbeat.Service{Log: log}).Start(svcCtx, b.NewConnection("heartbeat"))
	if o.mqtt {
		go mqttbridge.Start(svcCtx, b.NewConnection("mqtt"), mqttbridge.Options{Logger: log})
	}
	cfgSvc.Start(config.WithDevice(svcCtx, o.rig), b.NewConnection("config"))

	client := b.NewConnection("capture")
	if err := waitServiceReady(ctx, client); err != nil {
		return err
	}

	var streams []*pipeline.Stream
	conv := frame.NewConverter(log)
	for _, dev := range rig.Cameras {
		st, err := bringUp(ctx, client, dev, log)
		if err != nil {
			return fmt.Errorf("camera %s: %w", dev.ID, err)
		}
		if st.PixelFormat != "yuv422_uyvy" {
			log.Warn("camera streaming without conversion path", "camera", dev.ID, "format", st.PixelFormat)
			continue
		}
		s, err := newStream(client, dev.ID, st, o, conv, log)
		if err != nil {
			return fmt.Errorf("camera %s: %w", dev.ID, err)
		}
		streams = append(streams, s)
	}

	runErr := pipeline.RunAll(ctx, streams...)
	for _, s := range streams {
		st := s.Stats()
		log.Info("stream finished", "stream", st.Stream, "frames", st.Frames, "degraded", st.Degraded, "fps", st.FPS)
	}

	// Stop sensors on a fresh context; ctx may already be cancelled.
	stopCtx, cancel := context.WithTimeout(context.Background(), verbTimeout)
	defer cancel()
	for _, dev := range rig.Cameras {
		if err := control(stopCtx, client, dev.ID, camera.CtrlStop, nil); err != nil {
			log.Warn("stop failed", "camera", dev.ID, "err", err)
		}
	}
	cancelSvc()
	<-camDone
	return runErr
}

// rigConfig decodes the camera section the config service will publish.
func rigConfig(s *config.ConfigService, rig string) (types.CameraConfig, error) {
	raw := s.Raw
	if len(raw) == 0 {
		var ok bool
		if raw, ok = config.EmbeddedConfigLookup(rig); !ok {
			return types.CameraConfig{}, fmt.Errorf("unknown rig %q (have %s)", rig, strings.Join(config.Devices(), ", "))
		}
	}
	var doc struct {
		Camera types.CameraConfig `json:"camera"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return types.CameraConfig{}, fmt.Errorf("rig config: %w", err)
	}
	if len(doc.Camera.Cameras) == 0 {
		return types.CameraConfig{}, errors.New("rig config has no cameras")
	}
	return doc.Camera, nil
}

// hostBuses hands the same in-memory bus out for every id.
type hostBuses struct{ hw *platform.HostI2C }

func (h hostBuses) ByID(string) (drivers.I2C, bool) { return h.hw, true }

func openBuses(o options, log *slog.Logger) (platform.I2CBusFactory, func(), error) {
	switch o.busKind {
	case "host":
		hw := platform.NewHostI2C()
		// Let AR0234 rigs pass the identity check behind either output.
		for _, out := range []uint8{0b0001, 0b0010} {
			hw.SetRegister(out, ar0234.Address, ar0234.RegChipVersionHi, byte(ar0234.ChipVersion>>8))
			hw.SetRegister(out, ar0234.Address, ar0234.RegChipVersionLo, byte(ar0234.ChipVersion))
		}
		return hostBuses{hw: hw}, func() {}, nil
	case "periph":
		f, err := platform.NewPeriphFactory(physic.Frequency(o.speedKHz)*physic.KiloHertz, log)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown -bus %q", o.busKind)
	}
}

func waitServiceReady(ctx context.Context, c *bus.Connection) error {
	sub := c.Subscribe(bus.T(camera.TokCamera, camera.TokState))
	defer c.Unsubscribe(sub)
	deadline := time.NewTimer(readyTimeout)
	defer deadline.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errors.New("camera service not ready")
		case m := <-sub.Channel():
			st, ok := m.Payload.(types.ServiceState)
			if !ok {
				continue
			}
			switch st.Level {
			case camera.LevelReady:
				return nil
			case camera.LevelError:
				return fmt.Errorf("camera service: %s", st.Status)
			}
		}
	}
}

// bringUp runs setup_clock, configure and start, then returns the
// retained state carrying the frame layout.
func bringUp(ctx context.Context, c *bus.Connection, dev types.CameraDevice, log *slog.Logger) (types.CameraState, error) {
	steps := []struct {
		verb    string
		payload any
	}{
		{camera.CtrlSetupClock, nil},
		{camera.CtrlConfigure, types.ConfigureRequest{Mode: dev.Mode}},
		{camera.CtrlStart, nil},
	}
	for _, s := range steps {
		if err := control(ctx, c, dev.ID, s.verb, s.payload); err != nil {
			return types.CameraState{}, err
		}
		log.Info("camera step done", "camera", dev.ID, "verb", s.verb)
	}
	return streamingState(ctx, c, dev.ID)
}

func control(ctx context.Context, c *bus.Connection, id, verb string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, verbTimeout)
	defer cancel()
	reply, err := c.RequestWait(ctx, c.NewMessage(camera.ControlTopic(id, verb), payload, false))
	if err != nil {
		return err
	}
	if e, ok := reply.Payload.(types.ErrorReply); ok {
		return fmt.Errorf("%s: %s", verb, e.Error)
	}
	return nil
}

func streamingState(ctx context.Context, c *bus.Connection, id string) (types.CameraState, error) {
	sub := c.Subscribe(camera.StateTopic(id))
	defer c.Unsubscribe(sub)
	ctx, cancel := context.WithTimeout(ctx, verbTimeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return types.CameraState{}, fmt.Errorf("waiting for %s to stream: %w", id, ctx.Err())
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.CameraState); ok && st.Level == types.CameraStreaming {
				return st, nil
			}
		}
	}
}

func newStream(c *bus.Connection, id string, st types.CameraState, o options, conv *frame.Converter, log *slog.Logger) (*pipeline.Stream, error) {
	recv, err := receiverFor(id, st, o)
	if err != nil {
		return nil, err
	}
	saver, err := framesink.NewSaver(framesink.Config{
		Dir:    filepath.Join(o.out, id),
		Limit:  int(o.frames),
		Logger: log.With("camera", id),
	}, cvsink.Encoder{})
	if err != nil {
		return nil, err
	}
	var cons pipeline.Consumer = saver
	if o.snapEvery > 0 {
		cons = framesink.Tee{saver, &framesink.Snapshots{
			Conn:   c,
			Stream: id,
			Every:  o.snapEvery,
			Encode: cvsink.JPEG,
			Logger: log,
		}}
	}
	return pipeline.New(pipeline.Config{Name: id, Conn: c, Logger: log}, recv, conv, cons), nil
}

func receiverFor(id string, st types.CameraState, o options) (pipeline.Receiver, error) {
	w, h := int(st.Width), int(st.Height)
	path, ok := o.sources[id]
	if !ok {
		return pipeline.NewPatternReceiver(w, h, st.Framerate)
	}
	skip := 0
	if st.Layout != nil {
		skip = int(st.Layout.StartByte)
	}
	src := io.Reader(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		src = f
	}
	// Up to two frames are buffered ahead of the converter. The process
	// owns src until exit.
	ring := shmring.New(shmring.SizeFor(2 * (skip + frame.UYVY.Size(w, h))))
	recv, err := pipeline.NewReaderReceiver(ring, w, h, skip)
	if err != nil {
		return nil, err
	}
	go func() {
		_, _ = io.Copy(ring, src)
		_ = ring.CloseWrite()
	}()
	return recv, nil
}
