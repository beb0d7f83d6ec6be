package metrics

// CDRMetrics provides observability for the call detail record journal.
// Optional - pass nil to disable collection.
type CDRMetrics interface {
	// RecordJournaled increments the counter of records appended, by
	// record event name.
	RecordJournaled(event string)

	// RecordJournalError increments the counter of failed appends.
	RecordJournalError()
}
