package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencpx/cpx/pkg/event"
)

func newTestConnection(t *testing.T, idle time.Duration) (*Connection, *event.Manager) {
	t.Helper()
	mgr := event.NewManager(nil)
	a := testAgent("alice")
	fsm := NewFSM(a, FSMConfig{Events: mgr, Agents: NewRegistry()})
	conn := NewConnection(ConnConfig{
		Agent:       a,
		FSM:         fsm,
		Events:      mgr,
		IdleTimeout: idle,
	})
	t.Cleanup(conn.Logout)
	return conn, mgr
}

func TestPollDeliversPendingEvents(t *testing.T) {
	t.Parallel()

	conn, mgr := newTestConnection(t, time.Minute)

	mgr.Publish(event.New(event.TypeBlab, "alice", map[string]any{"message": "hi"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := conn.Poll(ctx)
	require.NoError(t, err)
	require.False(t, res.Killed)
	require.Len(t, res.Events, 1)
	require.Equal(t, event.TypeBlab, res.Events[0].Type)
}

func TestPollWakesOnNewEvent(t *testing.T) {
	t.Parallel()

	conn, mgr := newTestConnection(t, time.Minute)

	got := make(chan PollResult, 1)
	go func() {
		res, _ := conn.Poll(context.Background())
		got <- res
	}()

	// let the poller suspend first
	time.Sleep(20 * time.Millisecond)
	mgr.Publish(event.New(event.TypeAgentState, "alice", nil))

	select {
	case res := <-got:
		require.Len(t, res.Events, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not wake")
	}
}

func TestPollTimeoutLeavesSessionIntact(t *testing.T) {
	t.Parallel()

	conn, mgr := newTestConnection(t, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := conn.Poll(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the worker survived the timeout and still serves events
	mgr.Publish(event.New(event.TypeBlab, "alice", nil))
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	res, err := conn.Poll(ctx2)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
}

func TestNewPollSupersedesOld(t *testing.T) {
	t.Parallel()

	conn, mgr := newTestConnection(t, time.Minute)

	first := make(chan PollResult, 1)
	go func() {
		res, _ := conn.Poll(context.Background())
		first <- res
	}()
	time.Sleep(20 * time.Millisecond)

	second := make(chan PollResult, 1)
	go func() {
		res, _ := conn.Poll(context.Background())
		second <- res
	}()

	// the first poll is answered immediately, with nothing
	select {
	case res := <-first:
		require.False(t, res.Killed)
		require.Empty(t, res.Events)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded poll was not flushed")
	}

	// the second poll gets the next event
	mgr.Publish(event.New(event.TypeBlab, "alice", nil))
	select {
	case res := <-second:
		require.Len(t, res.Events, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("current poll did not wake")
	}
}

func TestIdleTimeoutKillsWorker(t *testing.T) {
	t.Parallel()

	conn, _ := newTestConnection(t, 80*time.Millisecond)

	// keep-alives hold it open
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		conn.KeepAlive()
	}
	select {
	case <-conn.Done():
		t.Fatal("worker died despite keep-alives")
	default:
	}

	// then silence
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not reclaim itself")
	}
}

func TestKillDeliversToSuspendedPoll(t *testing.T) {
	t.Parallel()

	conn, _ := newTestConnection(t, time.Minute)

	got := make(chan PollResult, 1)
	go func() {
		res, _ := conn.Poll(context.Background())
		got <- res
	}()
	time.Sleep(20 * time.Millisecond)

	conn.Logout()

	select {
	case res := <-got:
		require.True(t, res.Killed)
	case <-time.After(2 * time.Second):
		t.Fatal("kill not delivered to poller")
	}

	// the FSM died with the worker
	select {
	case <-conn.fsm.Done():
	case <-time.After(time.Second):
		t.Fatal("agent FSM still alive after logout")
	}
}

func TestAPIForwardsToFSM(t *testing.T) {
	t.Parallel()

	conn, _ := newTestConnection(t, time.Minute)

	_, err := conn.API(context.Background(), "set_state", []string{"idle"})
	require.NoError(t, err)
	require.Equal(t, StateIdle, conn.DumpAgent().State)

	_, err = conn.API(context.Background(), "no_such_verb", nil)
	require.ErrorIs(t, err, ErrUnknownFunction)
}
