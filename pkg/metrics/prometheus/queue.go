package prometheus

import (
	"time"

	"github.com/opencpx/cpx/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// queueMetrics is the Prometheus implementation for queue manager metrics.
type queueMetrics struct {
	queueDepth      *prometheus.GaugeVec
	rankingDuration prometheus.Histogram
	rankingSize     prometheus.Histogram
	leader          prometheus.Gauge
	workerRestarts  *prometheus.CounterVec
}

// NewQueueMetrics creates a new Prometheus-backed QueueMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewQueueMetrics() *queueMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &queueMetrics{
		queueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cpx_queue_depth",
				Help: "Current number of calls waiting per queue",
			},
			[]string{"queue"},
		),
		rankingDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cpx_queue_ranking_duration_seconds",
				Help:    "Time spent computing the bindable-queue ranking",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		rankingSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cpx_queue_ranking_candidates",
				Help:    "Number of bindable queues per ranking evaluation",
				Buckets: prometheus.LinearBuckets(0, 5, 10),
			},
		),
		leader: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "cpx_queue_leader",
				Help: "Whether this node currently holds queue leadership (1 or 0)",
			},
		),
		workerRestarts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpx_queue_worker_restarts_total",
				Help: "Total number of queue workers restarted after death",
			},
			[]string{"queue"},
		),
	}
}

func (m *queueMetrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *queueMetrics) RecordRanking(candidates int, duration time.Duration) {
	if m == nil {
		return
	}
	m.rankingDuration.Observe(duration.Seconds())
	m.rankingSize.Observe(float64(candidates))
}

func (m *queueMetrics) SetLeader(leader bool) {
	if m == nil {
		return
	}
	if leader {
		m.leader.Set(1)
	} else {
		m.leader.Set(0)
	}
}

func (m *queueMetrics) RecordWorkerRestart(queue string) {
	if m == nil {
		return
	}
	m.workerRestarts.WithLabelValues(queue).Inc()
}
