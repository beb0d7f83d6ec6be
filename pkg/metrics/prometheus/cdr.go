package prometheus

import (
	"github.com/opencpx/cpx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cdrMetrics is the Prometheus implementation for CDR journal metrics.
type cdrMetrics struct {
	journaled *prometheus.CounterVec
	errors    prometheus.Counter
}

// NewCDRMetrics creates a new Prometheus-backed CDRMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCDRMetrics() *cdrMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cdrMetrics{
		journaled: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_cdr_records_total",
				Help: "Total number of call detail records journaled by event",
			},
			[]string{"event"},
		),
		errors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "cpx_cdr_journal_errors_total",
				Help: "Total number of call detail record appends that failed",
			},
		),
	}
}

func (m *cdrMetrics) RecordJournaled(event string) {
	if m == nil {
		return
	}
	m.journaled.WithLabelValues(event).Inc()
}

func (m *cdrMetrics) RecordJournalError() {
	if m == nil {
		return
	}
	m.errors.Inc()
}
