package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencpx/cpx/pkg/channel/endpoint"
	"github.com/opencpx/cpx/pkg/event"
)

// fakeMedia counts gateway calls.
type fakeMedia struct {
	mu      sync.Mutex
	oncalls []string
	wrapups []string
	failOn  error
}

func (m *fakeMedia) Oncall(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	m.oncalls = append(m.oncalls, callID)
	return nil
}

func (m *fakeMedia) Wrapup(_ context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wrapups = append(m.wrapups, callID)
	return nil
}

func (m *fakeMedia) oncallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.oncalls)
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []State
}

func (n *recordingNotifier) ChannelUpdate(_ string, state State, _ Call) {
	n.mu.Lock()
	n.updates = append(n.updates, state)
	n.mu.Unlock()
}

func (n *recordingNotifier) states() []State {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]State, len(n.updates))
	copy(out, n.updates)
	return out
}

func testCall(media Media) *Call {
	return &Call{
		ID:        "call-1",
		Type:      MediaVoice,
		Client:    "client-1",
		CallerID:  "+4930123456",
		RingPath:  RingInband,
		MediaPath: RingInband,
		Source:    media,
	}
}

func waitDone(t *testing.T, c *Channel) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not terminate")
	}
}

func TestHappyPathInband(t *testing.T) {
	t.Parallel()

	media := &fakeMedia{}
	reg := NewRegistry()
	mgr := event.NewManager(nil)
	sub := mgr.Subscribe()
	notifier := &recordingNotifier{}

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice", Profile: "Default"},
		Call:         testCall(media),
		InitialState: StatePrering,
		Events:       mgr,
		Registry:     reg,
		Notifier:     notifier,
	})
	require.NoError(t, err)
	require.Equal(t, StatePrering, c.State())

	// entry actions registered the property and announced the channel
	prop, ok := reg.Get(c.ID())
	require.True(t, ok)
	require.Equal(t, "alice", prop.Login)
	first := <-sub
	require.Equal(t, event.TypeInitiatedChannel, first.Type)

	require.NoError(t, c.Ring(nil))
	require.Equal(t, StateRinging, c.State())

	require.NoError(t, c.Oncall(SourceConnection, "call-1"))
	require.Equal(t, StateOncall, c.State())
	require.Equal(t, 1, media.oncallCount())

	require.NoError(t, c.Wrapup(SourceConnection))
	require.Equal(t, StateWrapup, c.State())

	require.NoError(t, c.Stop())
	waitDone(t, c)
	require.NoError(t, c.Err())

	// property removed, terminated_channel carries the endwrapup marker
	_, ok = reg.Get(c.ID())
	require.False(t, ok)

	var terminated *event.Event
	for e := range sub {
		if e.Type == event.TypeTerminatedChannel {
			terminated = &e
			break
		}
	}
	require.NotNil(t, terminated)
	require.Equal(t, true, terminated.Data["endwrapup"])

	// media.Oncall ran exactly once across the whole interaction
	require.Equal(t, 1, media.oncallCount())

	// every visited state landed in the call history
	snap := c.CallSnapshot()
	var visited []State
	for _, sc := range snap.StateChanges {
		visited = append(visited, sc.State)
	}
	require.Equal(t, []State{StatePrering, StateRinging, StateOncall, StateWrapup}, visited)
}

func TestRegistryPropertyTracksState(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice", Profile: "Default"},
		Call:         testCall(&fakeMedia{}),
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
		Registry:     reg,
	})
	require.NoError(t, err)

	prop, ok := reg.Get(c.ID())
	require.True(t, ok)
	require.Equal(t, Property{
		ChannelID: c.ID(),
		Login:     "alice",
		Profile:   "Default",
		Type:      MediaVoice,
		Client:    "client-1",
		CallerID:  "+4930123456",
		State:     StatePrering,
	}, prop)

	require.NoError(t, c.Ring(nil))
	prop, _ = reg.Get(c.ID())
	require.Equal(t, StateRinging, prop.State)

	require.NoError(t, c.Oncall(SourceConnection, "call-1"))
	prop, _ = reg.Get(c.ID())
	require.Equal(t, StateOncall, prop.State)

	require.NoError(t, c.Wrapup(SourceConnection))
	require.NoError(t, c.Stop())
	waitDone(t, c)
}

func TestInvalidEventsLeaveStateUntouched(t *testing.T) {
	t.Parallel()

	media := &fakeMedia{}
	mgr := event.NewManager(nil)

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         testCall(media),
		InitialState: StatePrering,
		Events:       mgr,
	})
	require.NoError(t, err)
	defer func() { _ = c.Stop() }()

	// not a legal prering input
	require.ErrorIs(t, c.Wrapup(SourceConnection), ErrInvalid)
	require.Equal(t, StatePrering, c.State())
	require.Equal(t, 0, media.oncallCount())

	require.NoError(t, c.Ring(nil))

	// answering from the media side with the wrong call id is rejected
	require.ErrorIs(t, c.Oncall(SourceMedia, "other-call"), ErrInvalid)
	require.Equal(t, StateRinging, c.State())

	require.NoError(t, c.Stop())
	waitDone(t, c)
}

func TestRingWithForeignCallRejected(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         testCall(&fakeMedia{}),
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)

	other := &Call{ID: "call-2", Type: MediaVoice}
	require.ErrorIs(t, c.Ring(other), ErrInvalid)
	require.Equal(t, StatePrering, c.State())

	require.NoError(t, c.Ring(nil))
	require.NoError(t, c.Stop())
	waitDone(t, c)
}

func TestOutbandEndpointAnswerFromMedia(t *testing.T) {
	t.Parallel()

	media := &fakeMedia{}
	call := testCall(media)
	call.RingPath = RingOutband
	call.MediaPath = RingOutband

	starter := endpoint.NewLocalStarter()
	spec := endpoint.Spec{Type: endpoint.TypeSIPRegistration, Data: "alice"}

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         call,
		EndpointSpec: &spec,
		Starter:      starter,
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)

	// endpoint rang for the right call
	require.Equal(t, "call-1", starter.Last().RingingCall())

	require.NoError(t, c.Ring(nil))

	// the browser cannot answer an outband ring
	require.ErrorIs(t, c.Oncall(SourceConnection, "call-1"), ErrInvalid)

	// the phone can
	require.NoError(t, c.Oncall(SourceMedia, "call-1"))
	require.Equal(t, StateOncall, c.State())

	// phone hangs up: disposition, not death
	starter.Last().Hangup()
	require.Eventually(t, func() bool { return c.State() == StateWrapup }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())
	waitDone(t, c)
	require.NoError(t, c.Err())
}

func TestInbandRingOutbandMediaFreesEndpoint(t *testing.T) {
	t.Parallel()

	media := &fakeMedia{}
	call := testCall(media)
	call.RingPath = RingInband
	call.MediaPath = RingOutband

	starter := endpoint.NewLocalStarter()
	spec := endpoint.Spec{Type: endpoint.TypeSIP, Data: "sip:alice@pbx"}

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         call,
		EndpointSpec: &spec,
		Starter:      starter,
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)
	require.NoError(t, c.Ring(nil))

	require.NoError(t, c.Oncall(SourceConnection, "call-1"))
	require.Equal(t, StateOncall, c.State())
	require.Equal(t, 1, media.oncallCount())

	// the driver was hung up on answer; its exit must not move the channel
	select {
	case <-starter.Last().Done():
	case <-time.After(time.Second):
		t.Fatal("endpoint was not freed on answer")
	}
	require.Equal(t, StateOncall, c.State())

	require.NoError(t, c.Wrapup(SourceConnection))
	require.NoError(t, c.Stop())
	waitDone(t, c)
}

func TestEndpointExitWhileRingingKillsChannel(t *testing.T) {
	t.Parallel()

	starter := endpoint.NewLocalStarter()
	spec := endpoint.Spec{Type: endpoint.TypePSTN, Data: "+4930555"}
	call := testCall(&fakeMedia{})
	call.RingPath = RingOutband

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         call,
		EndpointSpec: &spec,
		Starter:      starter,
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)
	require.NoError(t, c.Ring(nil))

	starter.Last().Fail(errors.New("ISDN cause 17"))
	waitDone(t, c)
	require.Error(t, c.Err())
	require.Contains(t, c.Err().Error(), "ISDN cause 17")
}

func TestEndpointStartFailureAbortsConstruction(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	starter := endpoint.NewLocalStarter()
	spec := endpoint.Spec{Type: endpoint.TypeSIP} // missing address

	_, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         testCall(&fakeMedia{}),
		EndpointSpec: &spec,
		Starter:      starter,
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
		Registry:     reg,
	})
	require.Error(t, err)
	require.Empty(t, reg.List())
}

func TestAutoWrapupTimer(t *testing.T) {
	t.Parallel()

	call := testCall(&fakeMedia{})
	call.AutoendWrapup = 1

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         call,
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)

	require.NoError(t, c.Ring(nil))
	require.NoError(t, c.Oncall(SourceConnection, "call-1"))
	require.NoError(t, c.Wrapup(SourceConnection))

	// the end_wrapup timer terminates the channel without a stop
	waitDone(t, c)
	require.NoError(t, c.Err())
}

func TestAgentDeathTerminatesChannel(t *testing.T) {
	t.Parallel()

	agentDone := make(chan struct{})
	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		AgentDone:    agentDone,
		Call:         testCall(&fakeMedia{}),
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)
	require.NoError(t, c.Ring(nil))

	close(agentDone)
	waitDone(t, c)
	require.Error(t, c.Err())
}

func TestPrecallAnswerMatchesClientOrCall(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         testCall(&fakeMedia{}),
		InitialState: StatePrecall,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)

	require.ErrorIs(t, c.Oncall(SourceMedia, "nope"), ErrInvalid)
	require.NoError(t, c.Oncall(SourceMedia, "client-1"))
	require.Equal(t, StateOncall, c.State())

	require.NoError(t, c.Wrapup(SourceMedia))
	require.NoError(t, c.Stop())
	waitDone(t, c)
}

func TestWarmTransferPassThrough(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         testCall(&fakeMedia{}),
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)

	require.NoError(t, c.Ring(nil))
	require.NoError(t, c.Oncall(SourceConnection, "call-1"))

	require.NoError(t, c.WarmTransferHold())
	require.Equal(t, StateWarmTransferHold, c.State())

	require.NoError(t, c.WarmTransfer3rdParty("+4930999"))
	require.Equal(t, StateWarmTransfer3rd, c.State())

	// retrieve back to the caller
	require.NoError(t, c.Oncall(SourceConnection, "call-1"))
	require.Equal(t, StateOncall, c.State())

	require.NoError(t, c.Wrapup(SourceConnection))
	require.NoError(t, c.Stop())
	waitDone(t, c)
}

func TestStoppedChannelRejectsEvents(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{
		Agent:        AgentInfo{Login: "alice"},
		Call:         testCall(&fakeMedia{}),
		InitialState: StatePrering,
		Events:       event.NewManager(nil),
	})
	require.NoError(t, err)
	require.NoError(t, c.Ring(nil))
	require.NoError(t, c.Stop())
	waitDone(t, c)

	require.ErrorIs(t, c.Ring(nil), ErrStopped)
}
