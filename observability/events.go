package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lpstake",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed events delivered to a sink, segmented by type and sink.",
			}, []string{"type", "sink"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lpstake",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Committed events a sink failed to deliver.",
			}, []string{"type", "sink"}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordPublished increments the delivery counter for an event type.
func (m *eventMetrics) RecordPublished(eventType, sink string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType), normalizeLabel(sink)).Inc()
}

// RecordDropped increments the failure counter for an event type.
func (m *eventMetrics) RecordDropped(eventType, sink string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(eventType), normalizeLabel(sink)).Inc()
}

func normalizeLabel(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
