package metrics

// EventMetrics provides observability for the event manager fan-out.
// Optional - pass nil to disable collection.
type EventMetrics interface {
	// RecordPublished increments the counter of events broadcast, by type.
	RecordPublished(eventType string)

	// RecordDropped increments the counter of events dropped because a
	// subscriber's buffer was full, by type.
	RecordDropped(eventType string)

	// SetSubscribers updates the current subscriber count.
	SetSubscribers(count int)
}
