// Package dispatch routes uplinks by port to the mailbox tracker
// and forwards results to notification and telemetry collaborators.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/smartmail/influx"
	"github.com/temoto/smartmail/log2"
	"github.com/temoto/smartmail/lpp"
	"github.com/temoto/smartmail/mailbox"
	"github.com/temoto/smartmail/notify"
	"github.com/temoto/smartmail/transport"
	"github.com/temoto/smartmail/uplink"
)

const (
	DefaultPortKeepalive uint32 = 101
	DefaultPortDistance  uint32 = 102
)

type Options struct {
	State      *mailbox.State
	Notifier   notify.Notifier
	Recipients []string
	// nil disables telemetry
	Sink          influx.Sink
	PortKeepalive uint32
	PortDistance  uint32
	Metrics       *Metrics
	Log           *log2.Log
}

// Dispatcher handles one message at a time per caller; concurrent callers
// are serialized only by State slot locks.
type Dispatcher struct {
	opt Options
}

func New(opt Options) *Dispatcher {
	if opt.State == nil {
		opt.State = mailbox.NewState(0)
	}
	if opt.Notifier == nil {
		opt.Notifier = notify.Noop{}
	}
	if opt.PortKeepalive == 0 {
		opt.PortKeepalive = DefaultPortKeepalive
	}
	if opt.PortDistance == 0 {
		opt.PortDistance = DefaultPortDistance
	}
	return &Dispatcher{opt: opt}
}

func (self *Dispatcher) State() *mailbox.State { return self.opt.State }

// HandleMessage parses transport message by topic and dispatches uplinks.
// Malformed envelopes are logged and dropped.
func (self *Dispatcher) HandleMessage(ctx context.Context, topic string, payload []byte) {
	defer self.contain(topic)

	if uplink.IsActivationTopic(topic) {
		a, err := uplink.ParseActivation(payload)
		if err != nil {
			self.opt.Metrics.malformed()
			self.opt.Log.Errorf("activation topic=%s err=%v", topic, err)
			return
		}
		self.opt.Metrics.activation()
		self.opt.Log.Infof("device activated app=%s dev=%s deveui=%s addr=%s", a.AppID, a.DevID, a.DevEUI, a.DevAddr)
		return
	}
	if !uplink.IsUplinkTopic(topic) {
		self.opt.Log.Debugf("ignore topic=%s", topic)
		return
	}

	self.opt.Log.Debugf("uplink topic=%s payload=%s", topic, payload)
	u, err := uplink.Parse(payload)
	if err != nil {
		self.opt.Metrics.malformed()
		self.opt.Log.Errorf("malformed uplink topic=%s err=%v", topic, err)
		return
	}
	self.HandleUplink(ctx, u)
}

// HandleUplink emits raw metadata metrics, then routes payload by port.
func (self *Dispatcher) HandleUplink(ctx context.Context, u *uplink.Uplink) {
	defer self.contain(u.DevEUI)

	self.opt.Metrics.uplink(strconv.FormatUint(uint64(u.Port), 10))
	tags := u.Tags()
	if u.Meta.Counter != nil {
		self.emit(ctx, "counter", tags, float64(*u.Meta.Counter))
	}
	if u.Meta.Airtime != nil {
		self.emit(ctx, "airtime", tags, float64(*u.Meta.Airtime))
	}
	if u.Meta.SpreadingFactor != nil {
		self.emit(ctx, "sf", tags, float64(*u.Meta.SpreadingFactor))
	}
	if u.Meta.Bandwidth != nil {
		self.emit(ctx, "bw", tags, float64(*u.Meta.Bandwidth))
	}

	self.route(ctx, u.Port, u.Payload, u.DeviceTags())
}

// Handle is HandleUplink without envelope metadata.
func (self *Dispatcher) Handle(ctx context.Context, port uint32, payload []byte) {
	defer self.contain("")
	self.opt.Metrics.uplink(strconv.FormatUint(uint64(port), 10))
	self.route(ctx, port, payload, "")
}

func (self *Dispatcher) route(ctx context.Context, port uint32, payload []byte, tags string) {
	switch port {
	case self.opt.PortKeepalive:
		self.keepalive(ctx, payload, tags)
	case self.opt.PortDistance:
		self.distance(ctx, payload, tags)
	default:
		self.opt.Log.Infof("uplink on unknown port=%d", port)
	}
}

func (self *Dispatcher) keepalive(ctx context.Context, payload []byte, tags string) {
	self.opt.Log.Infof("keepalive")
	d := lpp.NewDecoder(payload, self.opt.Log)
	for {
		m, ok := d.Next()
		if !ok {
			break
		}
		switch {
		case m.Channel.Kind == lpp.ChannelDistanceSensor && m.Value.Kind == lpp.ValueTemperature:
			self.opt.State.SetTemperature(m.Value.Float)
			self.emit(ctx, "temperature", tags, decimal(m.Value.Float))
		case m.Channel.Kind == lpp.ChannelAdc && m.Value.Kind == lpp.ValueAnalogInput:
			self.opt.State.SetVoltage(m.Value.Float)
			self.emit(ctx, "voltage", tags, decimal(m.Value.Float))
		default:
			self.opt.Log.Debugf("keepalive ignore %s", m)
		}
	}
	self.checkAnomaly(d)
}

func (self *Dispatcher) distance(ctx context.Context, payload []byte, tags string) {
	self.opt.Log.Infof("distance report")
	d := lpp.NewDecoder(payload, self.opt.Log)
	m, ok := d.First(lpp.ChannelDistanceSensor, lpp.ValueDistance)
	if !ok {
		self.checkAnomaly(d)
		self.opt.Log.Debugf("distance report without distance measurement")
		return
	}
	mm := m.Value.Distance
	self.opt.Log.Debugf("distance=%dmm", mm)

	if t, ok := self.opt.State.ObserveDistance(mm); ok {
		self.opt.Metrics.transition(t.Kind.String())
		text := self.opt.State.Message(t)
		self.opt.Log.Infof("%s", text)
		self.notify(ctx, text)
	}
	self.emit(ctx, "distance", tags, float64(mm))
}

func (self *Dispatcher) notify(ctx context.Context, text string) {
	for _, to := range self.opt.Recipients {
		if err := self.opt.Notifier.Send(ctx, to, text); err != nil {
			self.opt.Metrics.failure("notify")
			self.opt.Log.Errorf("notify to=%s err=%v", to, errors.ErrorStack(err))
		}
	}
}

func (self *Dispatcher) emit(ctx context.Context, name string, tags string, value float64) {
	if self.opt.Sink == nil {
		return
	}
	if err := self.opt.Sink.Write(ctx, name, tags, value); err != nil {
		self.opt.Metrics.failure("telemetry")
		self.opt.Log.Errorf("telemetry %s err=%v", name, err)
	}
}

func (self *Dispatcher) checkAnomaly(d *lpp.Decoder) {
	if err := d.Anomaly(); err != nil {
		if a, ok := err.(*lpp.AnomalyError); ok {
			self.opt.Metrics.anomaly(a.Kind)
		}
	}
}

func (self *Dispatcher) contain(subject string) {
	if x := recover(); x != nil {
		self.opt.Metrics.panicked()
		self.opt.Log.Errorf("dispatch %s panic=%v stack=%s", subject, x, debug.Stack())
	}
}

// decimal keeps shortest float32 decimal form, 3.78 stays 3.78 not 3.7799999713897705
func decimal(f float32) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		panic(fmt.Sprintf("code error decimal(%v) err=%v", f, err))
	}
	return v
}

// Run handles messages one at a time in arrival order until a is stopped.
func (self *Dispatcher) Run(ctx context.Context, a *alive.Alive, messages <-chan transport.Message) {
	defer a.Done()
	stopCh := a.StopChan()
	for {
		select {
		case <-stopCh:
			return
		case m := <-messages:
			self.HandleMessage(ctx, m.Topic, m.Payload)
		}
	}
}
