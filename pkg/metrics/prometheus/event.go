package prometheus

import (
	"github.com/opencpx/cpx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// eventMetrics is the Prometheus implementation for event manager metrics.
type eventMetrics struct {
	published   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers prometheus.Gauge
}

// NewEventMetrics creates a new Prometheus-backed EventMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewEventMetrics() *eventMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &eventMetrics{
		published: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_events_published_total",
				Help: "Total number of events broadcast by type",
			},
			[]string{"type"},
		),
		dropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_events_dropped_total",
				Help: "Total number of events dropped for slow subscribers by type",
			},
			[]string{"type"},
		),
		subscribers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "cpx_event_subscribers",
				Help: "Current number of event manager subscribers",
			},
		),
	}
}

func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(eventType).Inc()
}

func (m *eventMetrics) RecordDropped(eventType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(eventType).Inc()
}

func (m *eventMetrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(count))
}
