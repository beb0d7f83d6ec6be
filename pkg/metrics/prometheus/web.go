// Package prometheus contains the Prometheus-backed implementations of the
// metrics interfaces. Constructors return nil when the registry has not been
// initialized, which callers pass through as a disabled metrics instance.
package prometheus

import (
	"strconv"
	"time"

	"github.com/opencpx/cpx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// webMetrics is the Prometheus implementation for dispatcher and session metrics.
type webMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionsIssued  prometheus.Counter
	sessionsRemoved prometheus.Counter
	sessionsActive  prometheus.Gauge
	logins          *prometheus.CounterVec
	pollTimeouts    prometheus.Counter
	pollSuperseded  prometheus.Counter
	pollsActive     prometheus.Gauge
}

// NewWebMetrics creates a new Prometheus-backed WebMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewWebMetrics() *webMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &webMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_http_requests_total",
				Help: "Total number of API requests by function, status and errcode",
			},
			[]string{"function", "status", "errcode"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cpx_http_request_duration_seconds",
				Help:    "API request processing time by function",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"function"},
		),
		sessionsIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "cpx_sessions_issued_total",
				Help: "Total number of session cookies minted",
			},
		),
		sessionsRemoved: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "cpx_sessions_removed_total",
				Help: "Total number of sessions removed after worker death or logout",
			},
		),
		sessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "cpx_sessions_active",
				Help: "Current size of the session table",
			},
		),
		logins: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"}, // "success" or errcode
		),
		pollTimeouts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "cpx_poll_timeouts_total",
				Help: "Total number of long polls answered with 408",
			},
		),
		pollSuperseded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "cpx_poll_superseded_total",
				Help: "Total number of long polls displaced by a newer poll",
			},
		),
		pollsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "cpx_polls_active",
				Help: "Current number of suspended pollers",
			},
		),
	}
}

func (m *webMetrics) RecordRequest(function string, status int, duration time.Duration, errcode string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(function, strconv.Itoa(status), errcode).Inc()
	m.requestDuration.WithLabelValues(function).Observe(duration.Seconds())
}

func (m *webMetrics) RecordSessionIssued() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

func (m *webMetrics) RecordSessionRemoved() {
	if m == nil {
		return
	}
	m.sessionsRemoved.Inc()
}

func (m *webMetrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(count))
}

func (m *webMetrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *webMetrics) RecordPollTimeout() {
	if m == nil {
		return
	}
	m.pollTimeouts.Inc()
}

func (m *webMetrics) RecordPollSuperseded() {
	if m == nil {
		return
	}
	m.pollSuperseded.Inc()
}

func (m *webMetrics) SetActivePolls(count int) {
	if m == nil {
		return
	}
	m.pollsActive.Set(float64(count))
}
