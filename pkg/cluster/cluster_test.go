package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newBareCluster(self string) *Cluster {
	return &Cluster{
		cfg:     Config{NodeName: self},
		members: make(map[string]struct{}),
		events:  make(chan Event, 16),
	}
}

func drain(c *Cluster) []Event {
	var out []Event
	for {
		select {
		case e := <-c.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestSingleNodeElectsItself(t *testing.T) {
	t.Parallel()

	c := newBareCluster("node-a")
	c.memberChanged(true, "node-a")

	require.True(t, c.IsLeader())
	require.Equal(t, []EventType{EventNodeJoined, EventElected}, eventTypes(drain(c)))
}

func TestSmallestNameLeads(t *testing.T) {
	t.Parallel()

	c := newBareCluster("node-b")
	c.memberChanged(true, "node-b")
	drain(c)

	// a smaller name joins: this node surrenders
	c.memberChanged(true, "node-a")
	require.Equal(t, "node-a", c.Leader())
	require.False(t, c.IsLeader())
	require.Equal(t, []EventType{EventNodeJoined, EventSurrendered}, eventTypes(drain(c)))

	// a larger name joining changes nothing
	c.memberChanged(true, "node-c")
	require.Equal(t, "node-a", c.Leader())
	require.Equal(t, []EventType{EventNodeJoined}, eventTypes(drain(c)))
}

func TestLeaderDeathPromotesNextSmallest(t *testing.T) {
	t.Parallel()

	c := newBareCluster("node-b")
	c.memberChanged(true, "node-b")
	c.memberChanged(true, "node-a")
	c.memberChanged(true, "node-c")
	drain(c)

	c.memberChanged(false, "node-a")
	require.True(t, c.IsLeader())

	events := drain(c)
	require.Equal(t, []EventType{EventNodeDown, EventElected}, eventTypes(events))
	require.Equal(t, "node-a", events[0].Node)
}

func TestFollowerObservesLeaderHandover(t *testing.T) {
	t.Parallel()

	c := newBareCluster("node-z")
	c.memberChanged(true, "node-z")
	c.memberChanged(true, "node-a")
	c.memberChanged(true, "node-b")
	drain(c)

	c.memberChanged(false, "node-a")
	require.Equal(t, "node-b", c.Leader())
	require.Equal(t, []EventType{EventNodeDown, EventLeaderChanged}, eventTypes(drain(c)))
}

func TestMembersSorted(t *testing.T) {
	t.Parallel()

	c := newBareCluster("node-b")
	c.memberChanged(true, "node-c")
	c.memberChanged(true, "node-a")
	c.memberChanged(true, "node-b")

	require.Equal(t, []string{"node-a", "node-b", "node-c"}, c.Members())
}

func TestFakeElectorHandover(t *testing.T) {
	t.Parallel()

	f := NewFakeElector("node-a")
	require.True(t, f.IsLeader())

	f.SetLeader("node-b")
	require.False(t, f.IsLeader())
	e := <-f.Events()
	require.Equal(t, EventSurrendered, e.Type)

	f.SetLeader("node-a")
	e = <-f.Events()
	require.Equal(t, EventElected, e.Type)

	f.Close()
	_, ok := <-f.Events()
	require.False(t, ok)
}
