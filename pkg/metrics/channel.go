package metrics

// ChannelMetrics provides observability for agent channel state machines.
// Optional - pass nil to disable collection.
type ChannelMetrics interface {
	// RecordTransition records a completed state transition.
	RecordTransition(from, to string)

	// RecordInvalidEvent records an event rejected in the current state.
	RecordInvalidEvent(state, event string)

	// SetActiveChannels updates the gauge of live channels in a given state.
	SetActiveChannels(state string, count int)
}
