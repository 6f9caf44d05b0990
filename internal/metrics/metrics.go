// Package metrics exposes the Prometheus counters/gauges/histograms
// shared across the transaction, dialog, session and orchestrator
// packages. Unlike the teacher's dialog.MetricsCollector (gated behind
// a "prometheus" build tag), these are always on: queue depth and
// retransmit counts are operationally load-bearing for this module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide metrics registry for voipcore.
type Metrics struct {
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	Retransmits         *prometheus.CounterVec
	StrayMessages       prometheus.Counter

	DialogsActive    prometheus.Gauge
	DialogDuration    prometheus.Histogram
	StateTransitions *prometheus.CounterVec

	QueueDepth     *prometheus.GaugeVec
	AgentsByState  *prometheus.GaugeVec
	CallsHandled   prometheus.Counter
	CallsAbandoned prometheus.Counter

	HandshakesTotal   *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram
}

// Config controls the namespace/subsystem metrics are registered under.
type Config struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
}

// DefaultConfig returns the ambient metrics configuration, registered
// against the default Prometheus registry.
func DefaultConfig() Config {
	return Config{
		Namespace: "voipcore",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// New constructs and registers every metric under cfg.
func New(cfg Config) *Metrics {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TransactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "transaction", Name: "total",
			Help: "Transactions created, labeled by kind.",
		}, []string{"kind"}),
		TransactionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "transaction", Name: "duration_seconds",
			Help:    "Time from transaction creation to termination.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		Retransmits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "transaction", Name: "retransmits_total",
			Help: "Retransmissions sent, labeled by timer.",
		}, []string{"timer"}),
		StrayMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "transaction", Name: "stray_messages_total",
			Help: "Messages that matched no transaction.",
		}),

		DialogsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: "dialog", Name: "active",
			Help: "Dialogs currently in Early or Confirmed state.",
		}),
		DialogDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "dialog", Name: "duration_seconds",
			Help:    "Dialog lifetime from creation to termination.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "dialog", Name: "state_transitions_total",
			Help: "Dialog state transitions, labeled by from/to state.",
		}, []string{"from", "to"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: "orchestrator", Name: "queue_depth",
			Help: "Calls waiting in a queue, labeled by queue name.",
		}, []string{"queue"}),
		AgentsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: "orchestrator", Name: "agents",
			Help: "Agents, labeled by availability state.",
		}, []string{"state"}),
		CallsHandled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "orchestrator", Name: "calls_handled_total",
			Help: "Calls successfully assigned to an agent.",
		}),
		CallsAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "orchestrator", Name: "calls_abandoned_total",
			Help: "Calls dropped from a queue without assignment.",
		}),

		HandshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: "dtls", Name: "handshakes_total",
			Help: "DTLS handshakes, labeled by outcome.",
		}, []string{"outcome"}),
		HandshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: "dtls", Name: "handshake_duration_seconds",
			Help:    "Time from ClientHello to Complete.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveHandshake is a convenience used by pkg/dtls to record a
// completed handshake's outcome and duration together.
func (m *Metrics) ObserveHandshake(outcome string, d time.Duration) {
	m.HandshakesTotal.WithLabelValues(outcome).Inc()
	if outcome == "complete" {
		m.HandshakeDuration.Observe(d.Seconds())
	}
}
