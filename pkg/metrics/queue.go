package metrics

import "time"

// QueueMetrics provides observability for the queue manager and its workers.
// Optional - pass nil to disable collection.
type QueueMetrics interface {
	// SetQueueDepth updates the number of calls waiting in a queue.
	SetQueueDepth(queue string, depth int)

	// RecordRanking records one evaluation of the bindable-queue ranking.
	RecordRanking(candidates int, duration time.Duration)

	// SetLeader updates whether this node currently holds queue leadership.
	SetLeader(leader bool)

	// RecordWorkerRestart increments the counter of queue workers restarted
	// after an unexpected death.
	RecordWorkerRestart(queue string)
}
