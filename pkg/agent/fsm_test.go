package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/event"
)

func testAgent(login string) Agent {
	return Agent{
		ID:            "id-" + login,
		Login:         login,
		Profile:       "Default",
		SecurityLevel: "agent",
		RingPath:      channel.RingInband,
	}
}

func newTestFSM(t *testing.T, a Agent) (*FSM, *Registry) {
	t.Helper()
	reg := NewRegistry()
	f := NewFSM(a, FSMConfig{
		Events:     event.NewManager(nil),
		Properties: channel.NewRegistry(),
		Agents:     reg,
	})
	t.Cleanup(f.Stop)
	return f, reg
}

func TestNewFSMStartsReleased(t *testing.T) {
	t.Parallel()

	f, reg := newTestFSM(t, testAgent("alice"))
	snap := f.Dump()
	require.Equal(t, StateReleased, snap.State)
	require.Equal(t, "default", snap.StateData)
	require.Equal(t, 1, reg.Len())
}

func TestSetState(t *testing.T) {
	t.Parallel()

	f, _ := newTestFSM(t, testAgent("alice"))

	require.NoError(t, f.SetState(StateIdle, ""))
	require.Equal(t, StateIdle, f.Dump().State)

	require.NoError(t, f.SetState(StateReleased, "Lunch"))
	snap := f.Dump()
	require.Equal(t, StateReleased, snap.State)
	require.Equal(t, "Lunch", snap.StateData)

	require.ErrorIs(t, f.SetState("bogus", ""), ErrUnknownState)
}

func TestStopUnregistersAndClosesDone(t *testing.T) {
	t.Parallel()

	f, reg := newTestFSM(t, testAgent("alice"))
	f.Stop()
	require.Equal(t, 0, reg.Len())

	select {
	case <-f.Done():
	default:
		t.Fatal("done not closed")
	}

	// idempotent
	f.Stop()
	require.ErrorIs(t, f.SetState(StateIdle, ""), ErrStopped)
}

func TestRingAndAck(t *testing.T) {
	t.Parallel()

	f, _ := newTestFSM(t, testAgent("alice"))
	require.NoError(t, f.SetState(StateIdle, ""))
	require.True(t, f.Available())

	call := &channel.Call{ID: "call-9", Type: channel.MediaVoice, Client: "client-1"}
	ch, err := f.Ring(context.Background(), call)
	require.NoError(t, err)
	require.Equal(t, channel.StatePrering, ch.State())
	require.False(t, f.Available())
	require.Len(t, f.Channels(), 1)

	require.NoError(t, ch.Ring(nil))

	// ack answers the sole ringing channel without naming it
	_, err = f.HandleAPI(context.Background(), "ack", nil)
	require.NoError(t, err)
	require.Equal(t, channel.StateOncall, ch.State())

	_, err = f.HandleAPI(context.Background(), "state", []string{"released", "Break"})
	require.NoError(t, err)

	require.NoError(t, ch.Wrapup(channel.SourceConnection))
	require.NoError(t, ch.Stop())

	require.Eventually(t, func() bool { return len(f.Channels()) == 0 },
		time.Second, 5*time.Millisecond)
}

func TestErrRejectsRingingCall(t *testing.T) {
	t.Parallel()

	f, _ := newTestFSM(t, testAgent("alice"))
	call := &channel.Call{ID: "call-9", Type: channel.MediaVoice}
	ch, err := f.Ring(context.Background(), call)
	require.NoError(t, err)
	require.NoError(t, ch.Ring(nil))

	_, err = f.HandleAPI(context.Background(), "err", []string{ch.ID()})
	require.NoError(t, err)

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("channel not terminated")
	}
}

func TestHandleAPIUnknownVerb(t *testing.T) {
	t.Parallel()

	f, _ := newTestFSM(t, testAgent("alice"))
	_, err := f.HandleAPI(context.Background(), "os_exec", []string{"rm"})
	require.ErrorIs(t, err, ErrUnknownFunction)
}

func TestSupervisorGate(t *testing.T) {
	t.Parallel()

	f, _ := newTestFSM(t, testAgent("alice"))
	_, err := f.HandleAPI(context.Background(), "supervisor", []string{"status"})
	require.ErrorIs(t, err, ErrNotSupervisor)

	boss := testAgent("boss")
	boss.SecurityLevel = "supervisor"
	bf, _ := newTestFSM(t, boss)
	res, err := bf.HandleAPI(context.Background(), "supervisor", []string{"status"})
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestGetAvailAgents(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	mgr := event.NewManager(nil)
	mk := func(login string) *FSM {
		f := NewFSM(testAgent(login), FSMConfig{Events: mgr, Agents: reg})
		t.Cleanup(f.Stop)
		return f
	}

	alice := mk("alice")
	mk("bob") // stays released

	require.NoError(t, alice.SetState(StateIdle, ""))

	res, err := alice.HandleAPI(context.Background(), "get_avail_agents", nil)
	require.NoError(t, err)
	snaps, ok := res.([]Snapshot)
	require.True(t, ok)
	require.Len(t, snaps, 1)
	require.Equal(t, "alice", snaps[0].Login)
}

func TestAgentTransfer(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	mgr := event.NewManager(nil)
	props := channel.NewRegistry()
	mk := func(login string) *FSM {
		f := NewFSM(testAgent(login), FSMConfig{Events: mgr, Agents: reg, Properties: props})
		t.Cleanup(f.Stop)
		return f
	}
	alice, bob := mk("alice"), mk("bob")

	call := &channel.Call{ID: "call-7", Type: channel.MediaVoice, Client: "client-1"}
	ch, err := alice.Ring(context.Background(), call)
	require.NoError(t, err)
	require.NoError(t, ch.Ring(nil))
	require.NoError(t, ch.Oncall(channel.SourceConnection, "call-7"))

	_, err = alice.HandleAPI(context.Background(), "agent_transfer", []string{"bob"})
	require.NoError(t, err)

	// bob now rings with the same call, alice is wrapping up
	require.Len(t, bob.Channels(), 1)
	require.Equal(t, "call-7", bob.Channels()[0].CallSnapshot().ID)
	require.Equal(t, channel.StateWrapup, ch.State())
}

func TestQueueTransfer(t *testing.T) {
	t.Parallel()

	var transferred []string
	binder := queueBinderFunc(func(_ context.Context, q string, call channel.Call) error {
		transferred = append(transferred, q+"/"+call.ID)
		return nil
	})

	f := NewFSM(testAgent("alice"), FSMConfig{
		Events: event.NewManager(nil),
		Queues: binder,
	})
	t.Cleanup(f.Stop)

	call := &channel.Call{ID: "call-3", Type: channel.MediaVoice}
	ch, err := f.Ring(context.Background(), call)
	require.NoError(t, err)
	require.NoError(t, ch.Ring(nil))
	require.NoError(t, ch.Oncall(channel.SourceConnection, "call-3"))

	_, err = f.HandleAPI(context.Background(), "queue_transfer", []string{"support"})
	require.NoError(t, err)
	require.Equal(t, []string{"support/call-3"}, transferred)
	require.Equal(t, channel.StateWrapup, ch.State())
}

func TestInitOutboundAndDial(t *testing.T) {
	t.Parallel()

	f, _ := newTestFSM(t, testAgent("alice"))

	res, err := f.HandleAPI(context.Background(), "init_outbound", []string{"client-1", "voice"})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Len(t, f.Channels(), 1)
	require.Equal(t, channel.StatePrecall, f.Channels()[0].State())

	_, err = f.HandleAPI(context.Background(), "dial", []string{"+4930777"})
	require.NoError(t, err)
	require.Equal(t, channel.StateOncall, f.Channels()[0].State())
}

type queueBinderFunc func(context.Context, string, channel.Call) error

func (fn queueBinderFunc) Transfer(ctx context.Context, q string, call channel.Call) error {
	return fn(ctx, q, call)
}
