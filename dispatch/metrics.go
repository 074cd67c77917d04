package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the listener saw. Zero value is not usable, nil *Metrics is silent.
type Metrics struct {
	Uplinks     *prometheus.CounterVec
	Malformed   prometheus.Counter
	Activations prometheus.Counter
	Anomalies   *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Panics      prometheus.Counter
	Errors      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Uplinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmail_uplinks_total",
			Help: "Uplink messages dispatched by port.",
		}, []string{"port"}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartmail_malformed_envelopes_total",
			Help: "Transport messages rejected before dispatch.",
		}),
		Activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartmail_activations_total",
			Help: "Device activation messages seen.",
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmail_decoder_anomalies_total",
			Help: "Payloads where decoding stopped early, by anomaly kind.",
		}, []string{"kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmail_transitions_total",
			Help: "Mailbox state transitions by kind.",
		}, []string{"kind"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmail_collaborator_failures_total",
			Help: "Failed notification or telemetry calls.",
		}, []string{"collaborator"}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartmail_dispatch_panics_total",
			Help: "Messages dropped because dispatch panicked.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartmail_logged_errors_total",
			Help: "Lines logged at error level.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Uplinks,
			m.Malformed,
			m.Activations,
			m.Anomalies,
			m.Transitions,
			m.Failures,
			m.Panics,
			m.Errors,
		)
	}
	return m
}

func (m *Metrics) uplink(port string) {
	if m != nil {
		m.Uplinks.WithLabelValues(port).Inc()
	}
}

func (m *Metrics) malformed() {
	if m != nil {
		m.Malformed.Inc()
	}
}

func (m *Metrics) activation() {
	if m != nil {
		m.Activations.Inc()
	}
}

func (m *Metrics) anomaly(kind string) {
	if m != nil {
		m.Anomalies.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) transition(kind string) {
	if m != nil {
		m.Transitions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) failure(collaborator string) {
	if m != nil {
		m.Failures.WithLabelValues(collaborator).Inc()
	}
}

func (m *Metrics) panicked() {
	if m != nil {
		m.Panics.Inc()
	}
}

// LoggedError is log2.ErrorFunc.
func (m *Metrics) LoggedError(error) {
	if m != nil {
		m.Errors.Inc()
	}
}
