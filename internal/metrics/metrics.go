// Package metrics exposes Prometheus instrumentation for the simulator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all simulator metrics.
	Namespace = "atalla"

	LabelCommand = "command"
	LabelOutcome = "outcome"
)

// Metrics holds the simulator collectors. It implements dispatch.Observer.
type Metrics struct {
	CommandsTotal     *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	RateLimitedTotal  prometheus.Counter
	KeyReloadsTotal   *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "commands_total",
				Help:      "Total number of commands by code and outcome",
			},
			[]string{LabelCommand, LabelOutcome},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of command execution in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{LabelCommand},
		),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of open client connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections",
		}),
		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of request lines rejected by the rate limiter",
		}),
		KeyReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "key_reloads_total",
				Help:      "Total number of master key and directory reloads by outcome",
			},
			[]string{LabelOutcome},
		),
	}
}

// ObserveCommand records one handled command line.
func (m *Metrics) ObserveCommand(code, outcome string, elapsed time.Duration) {
	if code == "" {
		code = "invalid"
	}
	m.CommandsTotal.WithLabelValues(code, outcome).Inc()
	m.CommandDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}

// ConnectionOpened records an accepted connection.
func (m *Metrics) ConnectionOpened() {
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Inc()
}

// ConnectionClosed records a closed connection.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Dec()
}

// RateLimited records a rejected request line.
func (m *Metrics) RateLimited() {
	m.RateLimitedTotal.Inc()
}

// KeyReload records a snapshot reload attempt.
func (m *Metrics) KeyReload(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.KeyReloadsTotal.WithLabelValues(outcome).Inc()
}
