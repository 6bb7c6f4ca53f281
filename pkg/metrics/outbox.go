package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outbox dispatch outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics counts notification events by dispatch outcome.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
	batchSize  prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_dispatched_total",
		Help:      "Outbox events handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_size",
		Help:      "Rows claimed per publisher batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100},
	})
	reg.MustRegister(dispatched, batchSize)
	return &OutboxMetrics{dispatched: dispatched, batchSize: batchSize}
}

// Dispatched records one event outcome.
func (m *OutboxMetrics) Dispatched(eventType, outcome string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveBatch records how many rows a non-empty batch claimed.
func (m *OutboxMetrics) ObserveBatch(size int) {
	if m == nil || m.batchSize == nil || size <= 0 {
		return
	}
	m.batchSize.Observe(float64(size))
}
