package queue

import (
	"sort"
	"time"

	"github.com/opencpx/cpx/pkg/metrics"
)

// RankedQueue is one bindable queue in dispatch order, with the call the
// dispatcher would bind and the final dispatch weight.
type RankedQueue struct {
	Name   string     `json:"name"`
	Weight int        `json:"weight"`
	Call   QueuedCall `json:"call"`

	worker *Worker
}

// Worker returns the live worker behind the entry, nil for entries that
// were ranked from a snapshot.
func (r RankedQueue) Worker() *Worker { return r.worker }

// rankBindable orders the bindable queues for dispatch. Queues with
// nothing to bind are dropped; the rest are sorted by the age of their
// best call, then by that call's priority, then by queue pressure
// (weight times waiting-call count, heavier first). The earlier sorts
// are stable under the later ones, so pressure decides first and the
// older, more urgent call wins among equals. The final weight folds the
// rank in: position c of L gets w + L - c, so downstream consumers can
// re-sort a merged list without losing the order decided here.
func rankBindable(workers []*Worker, m metrics.QueueMetrics) []RankedQueue {
	start := time.Now()

	ranked := make([]RankedQueue, 0, len(workers))
	for _, w := range workers {
		qc, ok := w.Ask()
		if !ok {
			continue
		}
		ranked = append(ranked, RankedQueue{
			Name:   w.Name(),
			Weight: w.Weight() * w.Count(),
			Call:   qc,
			worker: w,
		})
	}

	// input arrives in map order, so the first sort anchors on the name
	// to keep equal enqueue times deterministic
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Name < ranked[j].Name
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Call.EnqueueTime.Before(ranked[j].Call.EnqueueTime)
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Call.Priority < ranked[j].Call.Priority
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight > ranked[j].Weight
	})

	total := len(ranked)
	for i := range ranked {
		ranked[i].Weight += total - (i + 1)
	}

	if m != nil {
		m.RecordRanking(total, time.Since(start))
	}
	return ranked
}
