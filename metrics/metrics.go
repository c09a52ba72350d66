// Package metrics define as métricas Prometheus do agente.
//
// As métricas são registradas num prometheus.Registerer fornecido pelo chamador
// (sem registro global), para que testes possam usar registries isolados.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gigsync"

type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	QueueEnqueued      *prometheus.CounterVec
	QueueReplayed      *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	ReplayPasses       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by action category and outcome",
		}, []string{"category", "outcome"}),
		QueueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_enqueued_total",
			Help:      "Operations buffered in the offline queue by type",
		}, []string{"type"}),
		QueueReplayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_replayed_total",
			Help:      "Replayed operations by type and outcome",
		}, []string{"type", "outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Operations currently persisted in the offline queue",
		}),
		ReplayPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_replay_passes_total",
			Help:      "Completed replay passes",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RateLimitDecisions, m.QueueEnqueued, m.QueueReplayed, m.QueueDepth, m.ReplayPasses)
	}
	return m
}

// Enqueued, Replayed, Depth e PassCompleted implementam o Recorder da fila offline.

func (m *Metrics) Enqueued(opType string) {
	m.QueueEnqueued.WithLabelValues(opType).Inc()
}

func (m *Metrics) Replayed(opType, outcome string) {
	m.QueueReplayed.WithLabelValues(opType, outcome).Inc()
}

func (m *Metrics) Depth(n int) {
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) PassCompleted() {
	m.ReplayPasses.Inc()
}

func (m *Metrics) Decision(category string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.RateLimitDecisions.WithLabelValues(category, outcome).Inc()
}
