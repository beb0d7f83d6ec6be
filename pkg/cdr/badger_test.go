package cdr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencpx/cpx/pkg/event"
)

func openTestJournal(t *testing.T) *BadgerJournal {
	t.Helper()
	j, err := OpenJournal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, j.Close())
	})
	return j
}

func TestJournalAppendAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Record{CallID: "call-a", Agent: "alice", Event: EventInit, State: "prering"}))
	require.NoError(t, j.Record(ctx, Record{CallID: "call-b", Agent: "bob", Event: EventInit, State: "prering"}))
	require.NoError(t, j.Record(ctx, Record{CallID: "call-a", Agent: "alice", Event: EventStateChange, State: "ringing"}))
	require.NoError(t, j.Record(ctx, Record{CallID: "call-a", Agent: "alice", Event: EventEndWrapup}))

	records, err := j.List(ctx, "call-a")
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Append order survives the round trip.
	require.Equal(t, EventInit, records[0].Event)
	require.Equal(t, EventStateChange, records[1].Event)
	require.Equal(t, EventEndWrapup, records[2].Event)
	for _, r := range records {
		require.Equal(t, "call-a", r.CallID)
		require.Equal(t, "alice", r.Agent)
		require.NotZero(t, r.Timestamp)
	}
}

func TestJournalListUnknownCall(t *testing.T) {
	j := openTestJournal(t)

	records, err := j.List(context.Background(), "nope")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := OpenJournal(dir)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, Record{CallID: "call-a", Event: EventInit}))
	require.NoError(t, j.Close())

	j2, err := OpenJournal(dir)
	require.NoError(t, err)
	defer j2.Close()

	require.NoError(t, j2.Record(ctx, Record{CallID: "call-a", Event: EventTerminated}))

	records, err := j2.List(ctx, "call-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, EventInit, records[0].Event)
	require.Equal(t, EventTerminated, records[1].Event)
}

func TestFollowJournalsChannelEvents(t *testing.T) {
	sink := NewMemorySink()
	events := event.NewManager(nil)
	sub := events.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		Follow(ctx, sink, sub)
		close(done)
	}()

	events.Publish(event.New(event.TypeInitiatedChannel, "alice", map[string]any{
		"call": "call-a", "state": "prering",
	}))
	events.Publish(event.New(event.TypeAgentState, "alice", map[string]any{
		"state": "released",
	}))
	events.Publish(event.New(event.TypeChannelStateUpdate, "alice", map[string]any{
		"call": "call-a", "state": "ringing", "old_state": "prering",
	}))

	require.Eventually(t, func() bool {
		return len(sink.Records()) == 2
	}, time.Second, 5*time.Millisecond, "agent_state events should not be journaled")

	records, err := sink.List(ctx, "call-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, EventInit, records[0].Event)
	require.Equal(t, "prering", records[0].State)
	require.Equal(t, EventStateChange, records[1].Event)
	require.Equal(t, "ringing", records[1].State)

	events.Evict(sub)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow should return after the subscription closes")
	}
}

func TestFollowMapsWrapupTermination(t *testing.T) {
	sink := NewMemorySink()
	events := event.NewManager(nil)
	sub := events.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Follow(ctx, sink, sub)

	events.Publish(event.New(event.TypeTerminatedChannel, "alice", map[string]any{
		"call": "call-a", "state": "wrapup", "endwrapup": true,
	}))
	events.Publish(event.New(event.TypeTerminatedChannel, "alice", map[string]any{
		"call": "call-b", "state": "ringing",
	}))

	require.Eventually(t, func() bool {
		return len(sink.Records()) == 2
	}, time.Second, 5*time.Millisecond)

	endA, err := sink.List(ctx, "call-a")
	require.NoError(t, err)
	require.Equal(t, EventEndWrapup, endA[0].Event)

	endB, err := sink.List(ctx, "call-b")
	require.NoError(t, err)
	require.Equal(t, EventTerminated, endB[0].Event)
}
