// Package prom exports session lifecycle metrics to Prometheus.
package prom

import (
	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callctl"

var states = []domain.State{
	domain.StateIdle,
	domain.StateCreating,
	domain.StateJoining,
	domain.StateJoined,
	domain.StateLeaving,
	domain.StateError,
}

// Metrics implements port.Metrics.
type Metrics struct {
	transitions       *prometheus.CounterVec
	state             *prometheus.GaugeVec
	provisionFailures prometheus.Counter
	clientsCreated    prometheus.Counter
	clientsReleased   *prometheus.CounterVec
	liveClients       prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by source and target state.",
		}, []string{"from", "to"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
		provisionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_provision_failures_total",
			Help:      "Rooms that could not be provisioned.",
		}),
		clientsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_clients_created_total",
			Help:      "Call clients created.",
		}),
		clientsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_clients_released_total",
			Help:      "Call client releases by result.",
		}, []string{"result"}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_clients_live",
			Help:      "Call clients created and not yet released.",
		}),
	}
	reg.MustRegister(m.transitions, m.state, m.provisionFailures, m.clientsCreated, m.clientsReleased, m.liveClients)
	m.setState(domain.StateIdle)
	return m
}

func (m *Metrics) setState(current domain.State) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}

func (m *Metrics) Transition(from, to domain.State) {
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.setState(to)
}

func (m *Metrics) ProvisionFailed() {
	m.provisionFailures.Inc()
}

func (m *Metrics) ClientCreated() {
	m.clientsCreated.Inc()
	m.liveClients.Inc()
}

func (m *Metrics) ClientReleased(err error) {
	if err != nil {
		m.clientsReleased.WithLabelValues("error").Inc()
		return
	}
	m.clientsReleased.WithLabelValues("ok").Inc()
	m.liveClients.Dec()
}
