// Package metrics exposes the relay's internal event counters via Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event names recorded by the relay. All events share one counter with an
// `event` label so new events don't require new metric registrations.
const (
	EventAuthFailure     = "auth_failure"
	EventJoinRejected    = "join_rejected"
	EventSignalRejected  = "signal_rejected"
	EventInvalidSignal   = "invalid_signal"
	EventDeliveryDropped = "delivery_dropped"
	EventSignalsRelayed  = "signals_relayed"
	EventFramesBroadcast = "frames_broadcast"
	EventRateLimited     = "rate_limited"
)

// Metrics is the relay's metric registry. A nil *Metrics is valid and records
// nothing, so components can treat metrics as optional.
type Metrics struct {
	reg *prometheus.Registry

	events      *prometheus.CounterVec
	connections prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_relay_events_total",
			Help: "Internal relay event counters.",
		}, []string{"event"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_relay_connections",
			Help: "Currently registered connections.",
		}),
	}
	m.reg.MustRegister(m.events, m.connections)
	return m
}

func (m *Metrics) Inc(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// EventCounter returns the underlying counter for an event. Intended for
// tests (e.g. testutil.ToFloat64).
func (m *Metrics) EventCounter(event string) prometheus.Counter {
	return m.events.WithLabelValues(event)
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
