package camera

import (
	"fmt"
	"time"

	"mipicam-go/bus"
	"mipicam-go/drivers/csi"
	"mipicam-go/drivers/mipisensor"
	"mipicam-go/errcode"
	"mipicam-go/types"
	"mipicam-go/x/timex"
)

// job is one control verb queued for a camera.
type job struct {
	verb string
	msg  *bus.Message // nil for service-initiated jobs
	arg  any
}

// result is what a worker reports back to the service loop.
type result struct {
	camID  string
	verb   string
	msg    *bus.Message
	reply  any
	err    error
	status mipisensor.Status
	layout *types.FrameLayout
}

// camWorker runs one camera's jobs in FIFO order on its own goroutine.
type camWorker struct {
	id          string
	ctrl        *mipisensor.Controller
	recv        csi.Receiver
	defaultMode string
	jobs        chan job
	sink        chan<- result
	quit        chan struct{}
	done        chan struct{}
}

func newCamWorker(id string, ctrl *mipisensor.Controller, recv csi.Receiver, defaultMode string, queueLen int, sink chan<- result) *camWorker {
	if queueLen <= 0 {
		queueLen = 8
	}
	w := &camWorker{
		id:          id,
		ctrl:        ctrl,
		recv:        recv,
		defaultMode: defaultMode,
		jobs:        make(chan job, queueLen),
		sink:        sink,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues j without blocking. It reports false when the queue is full.
func (w *camWorker) Submit(j job) bool {
	select {
	case w.jobs <- j:
		return true
	default:
		return false
	}
}

// Close stops the worker after the job in flight and waits for it.
func (w *camWorker) Close() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
	<-w.done
}

func (w *camWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.jobs:
			r := w.exec(j)
			select {
			case w.sink <- r:
			case <-w.quit:
				return
			}
		}
	}
}

func (w *camWorker) exec(j job) result {
	r := result{camID: w.id, verb: j.verb, msg: j.msg}
	switch j.verb {
	case CtrlSetupClock:
		r.err = w.ctrl.SetupClock()

	case CtrlConfigure:
		var p types.ConfigureRequest
		if err := decodeJSON(j.arg, &p); err != nil {
			r.err = errcode.Wrap(errcode.InvalidPayload, CtrlConfigure, err)
			break
		}
		if p.Mode == "" {
			p.Mode = w.defaultMode
		}
		m, ok := resolveMode(w.ctrl.Profile(), p.Mode)
		if !ok {
			r.err = errcode.New(errcode.InvalidMode, CtrlConfigure, fmt.Sprintf("unknown mode %q", p.Mode))
			break
		}
		r.err = w.ctrl.Configure(m)

	case CtrlStart:
		r.err = w.ctrl.Start()

	case CtrlStop:
		r.err = w.ctrl.Stop()

	case CtrlGetRegister:
		var p types.RegisterGet
		if err := decodeJSON(j.arg, &p); err != nil {
			r.err = errcode.Wrap(errcode.InvalidPayload, CtrlGetRegister, err)
			break
		}
		v, err := w.ctrl.GetRegister(p.Addr, p.Reg)
		if err != nil {
			r.err = err
			break
		}
		r.reply = types.RegisterValue{Addr: p.Addr, Reg: p.Reg, Value: v}

	case CtrlSetRegister:
		var p types.RegisterSet
		if err := decodeJSON(j.arg, &p); err != nil {
			r.err = errcode.Wrap(errcode.InvalidPayload, CtrlSetRegister, err)
			break
		}
		r.err = w.ctrl.SetRegister(p.Addr, p.Reg, p.Value, timex.Millis(p.TimeoutMs))

	default:
		r.err = errcode.New(errcode.Unsupported, j.verb, "unknown verb")
	}
	if r.err == nil && r.reply == nil {
		r.reply = types.OKReply{OK: true}
	}
	r.status = w.ctrl.Status()
	r.layout = layoutOf(w.ctrl, r.status, w.recv)
	return r
}

// layoutOf returns where pixels sit in frames received for the selected
// mode, or nil when no streamable mode is selected.
func layoutOf(ctrl *mipisensor.Controller, st mipisensor.Status, recv csi.Receiver) *types.FrameLayout {
	if st.Mode == mipisensor.ModeUnknown {
		return nil
	}
	l, err := ctrl.Layout(recv)
	if err != nil {
		return nil
	}
	return &types.FrameLayout{StartByte: l.StartByte, ReceivedLineBytes: l.ReceivedLineBytes}
}

// stateOf renders a controller status as the retained camera state.
func stateOf(ctrl *mipisensor.Controller, st mipisensor.Status, layout *types.FrameLayout, err error) types.CameraState {
	cs := types.CameraState{
		Sensor: st.Sensor,
		Link:   ctrl.Link().ID(),
		Output: ctrl.Output().String(),
		Layout: layout,
		TS:     timex.NowMs(),
	}
	switch st.State {
	case mipisensor.StateConfigured:
		cs.Level = types.CameraConfigured
	case mipisensor.StateStreaming:
		cs.Level = types.CameraStreaming
	case mipisensor.StateStopped:
		cs.Level = types.CameraStopped
	default:
		cs.Level = types.CameraIdle
	}
	if st.Mode != mipisensor.ModeUnknown {
		cs.Mode = ctrl.Profile().ModeName(st.Mode)
		cs.Width = st.Format.Width
		cs.Height = st.Format.Height
		cs.Framerate = st.Format.Framerate
		cs.PixelFormat = st.Format.PixelFormat.String()
	}
	if err != nil {
		cs.Error = string(errcode.Of(err))
		if st.State == mipisensor.StateUnknown && hardwareFault(err) {
			cs.Level = types.CameraError
		}
	}
	return cs
}

// resolveMode looks name up; an empty name picks a profile's only mode.
func resolveMode(p mipisensor.Profile, name string) (mipisensor.Mode, bool) {
	if name == "" && len(p.Formats) == 1 {
		for m := range p.Formats {
			return m, true
		}
	}
	return p.ModeByName(name)
}

func hardwareFault(err error) bool {
	switch errcode.Of(err) {
	case errcode.I2CTransactionFailed, errcode.I2CTimeout, errcode.UnsupportedSensorVersion:
		return true
	}
	return false
}

// timeoutOr converts a millisecond setting, falling back to def when zero.
func timeoutOr(ms uint32, def time.Duration) time.Duration {
	if ms == 0 {
		return def
	}
	return timex.Millis(ms)
}
