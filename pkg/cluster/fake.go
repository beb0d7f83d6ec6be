package cluster

import "sync"

// FakeElector is a hand-driven Elector for tests and single-process
// setups. It starts as its own leader.
type FakeElector struct {
	mu     sync.Mutex
	self   string
	leader string
	events chan Event
	closed bool
}

// NewFakeElector creates an elector that considers itself leader.
func NewFakeElector(self string) *FakeElector {
	return &FakeElector{
		self:   self,
		leader: self,
		events: make(chan Event, 16),
	}
}

func (f *FakeElector) Self() string { return f.self }

func (f *FakeElector) Leader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}

func (f *FakeElector) IsLeader() bool {
	return f.Leader() == f.self
}

func (f *FakeElector) Events() <-chan Event { return f.events }

// SetLeader moves leadership and emits the event the real cluster would.
func (f *FakeElector) SetLeader(leader string) {
	f.mu.Lock()
	old := f.leader
	f.leader = leader
	f.mu.Unlock()
	if leader == old {
		return
	}
	switch {
	case leader == f.self:
		f.events <- Event{Type: EventElected, Node: f.self, Leader: leader}
	case old == f.self:
		f.events <- Event{Type: EventSurrendered, Node: f.self, Leader: leader}
	default:
		f.events <- Event{Type: EventLeaderChanged, Node: leader, Leader: leader}
	}
}

// NodeDown reports a dead member, recomputing nothing: the test decides
// the new leader by calling SetLeader first if needed.
func (f *FakeElector) NodeDown(node string) {
	f.events <- Event{Type: EventNodeDown, Node: node, Leader: f.Leader()}
}

// Close closes the event stream.
func (f *FakeElector) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}
