package prometheus

import (
	"github.com/opencpx/cpx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// channelMetrics is the Prometheus implementation for channel FSM metrics.
type channelMetrics struct {
	transitions    *prometheus.CounterVec
	invalidEvents  *prometheus.CounterVec
	activeChannels *prometheus.GaugeVec
}

// NewChannelMetrics creates a new Prometheus-backed ChannelMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewChannelMetrics() *channelMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &channelMetrics{
		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_channel_transitions_total",
				Help: "Total number of channel state transitions",
			},
			[]string{"from", "to"},
		),
		invalidEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_channel_invalid_events_total",
				Help: "Total number of events rejected by the channel state machine",
			},
			[]string{"state", "event"},
		),
		activeChannels: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cpx_channels_active",
				Help: "Current number of live channels by state",
			},
			[]string{"state"},
		),
	}
}

func (m *channelMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *channelMetrics) RecordInvalidEvent(state, event string) {
	if m == nil {
		return
	}
	m.invalidEvents.WithLabelValues(state, event).Inc()
}

func (m *channelMetrics) SetActiveChannels(state string, count int) {
	if m == nil {
		return
	}
	m.activeChannels.WithLabelValues(state).Set(float64(count))
}
