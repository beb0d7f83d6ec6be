package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/channel/endpoint"
	"github.com/opencpx/cpx/pkg/event"
	"github.com/opencpx/cpx/pkg/metrics"
)

// Availability states of the agent itself. Channel states live on the
// channels; the agent is either taking calls or released with a reason.
const (
	StateIdle     = "idle"
	StateReleased = "released"
)

// Sentinel errors surfaced by the API verbs. The dispatcher maps them to
// protocol errcodes at the handler boundary.
var (
	ErrUnknownFunction = errors.New("agent: unknown api function")
	ErrUnknownState    = errors.New("agent: unknown availability state")
	ErrNoChannel       = errors.New("agent: no matching channel")
	ErrNotSupervisor   = errors.New("agent: supervisor access required")
	ErrStopped         = errors.New("agent: stopped")
)

// QueueBinder requeues a call onto a named queue. The queue manager
// implements it; tests install fakes.
type QueueBinder interface {
	Transfer(ctx context.Context, queueName string, call channel.Call) error
}

// FSMConfig wires an agent FSM into the daemon.
type FSMConfig struct {
	Events     *event.Manager
	Properties *channel.Registry
	Starter    endpoint.Starter
	Metrics    metrics.ChannelMetrics
	Agents     *Registry
	Queues     QueueBinder

	// Notifier receives channel updates; the connection worker installs
	// itself here so channel activity lands in the poll queue.
	Notifier channel.Notifier
}

// FSM tracks one agent's availability and owns their channels. Calls into
// the FSM are serialized by the connection worker's inbox; the internal
// lock only covers the cross-actor readers (registry listings, channel
// callbacks).
type FSM struct {
	agent Agent
	cfg   FSMConfig

	mu           sync.Mutex
	state        string
	stateData    string
	stateTime    time.Time
	endpointSpec *endpoint.Spec
	channels     map[string]*channel.Channel
	stopped      bool

	done chan struct{}
}

// NewFSM creates the agent FSM in the released state and registers it for
// cluster-local agent listings.
func NewFSM(a Agent, cfg FSMConfig) *FSM {
	f := &FSM{
		agent:     a,
		cfg:       cfg,
		state:     StateReleased,
		stateData: "default",
		stateTime: time.Now(),
		channels:  make(map[string]*channel.Channel),
		done:      make(chan struct{}),
	}
	if cfg.Agents != nil {
		cfg.Agents.register(f)
	}
	f.publishState()
	return f
}

// Agent returns the immutable agent record.
func (f *FSM) Agent() Agent { return f.agent }

// Done is closed when the FSM stops; channels are linked to it and die
// with the agent.
func (f *FSM) Done() <-chan struct{} { return f.done }

// Stop terminates the FSM. Owned channels observe the done channel and
// terminate themselves.
func (f *FSM) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.mu.Unlock()

	if f.cfg.Agents != nil {
		f.cfg.Agents.unregister(f.agent.Login)
	}
	close(f.done)
	logger.Info("agent stopped", logger.KeyAgent, f.agent.Login)
}

// SetEndpoint installs the endpoint descriptor used for future channels.
// A nil spec selects the inband sentinel.
func (f *FSM) SetEndpoint(spec *endpoint.Spec) {
	f.mu.Lock()
	f.endpointSpec = spec
	f.mu.Unlock()
}

// setNotifier is called by the connection worker at login so channel
// activity reaches the poll queue. Channels created before the install
// keep the previous notifier.
func (f *FSM) setNotifier(n channel.Notifier) {
	f.mu.Lock()
	f.cfg.Notifier = n
	f.mu.Unlock()
}

// SetState changes availability. Valid states are idle and released; the
// released reason travels in data.
func (f *FSM) SetState(state, data string) error {
	if state != StateIdle && state != StateReleased {
		return fmt.Errorf("%w: %s", ErrUnknownState, state)
	}

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrStopped
	}
	f.state = state
	f.stateData = data
	f.stateTime = time.Now()
	f.mu.Unlock()

	f.publishState()
	logger.Debug("agent state change",
		logger.KeyAgent, f.agent.Login,
		logger.KeyState, state)
	return nil
}

// Dump returns the agent snapshot served by dump_agent and check_cookie.
func (f *FSM) Dump() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		Login:     f.agent.Login,
		Profile:   f.agent.Profile,
		Skills:    f.agent.Skills,
		State:     f.state,
		StateData: f.stateData,
		StateTime: f.stateTime.Unix(),
		Timestamp: snapshotTimestamp(),
		MediaLoad: len(f.channels),
	}
}

// Available reports whether the agent is idle with no active channel.
func (f *FSM) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.stopped && f.state == StateIdle && len(f.channels) == 0
}

// Ring creates a prering channel for a call offered to this agent. The
// endpoint is resolved from the installed descriptor and the agent's ring
// path.
func (f *FSM) Ring(ctx context.Context, call *channel.Call) (*channel.Channel, error) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil, ErrStopped
	}
	spec := f.endpointSpec
	notifier := f.cfg.Notifier
	f.mu.Unlock()

	if call.RingPath == "" {
		call.RingPath = f.agent.RingPath
	}
	if call.MediaPath == "" {
		call.MediaPath = call.RingPath
	}

	// inband ringing needs no phone driver
	if call.RingPath == channel.RingInband && call.MediaPath == channel.RingInband {
		spec = nil
	}

	ch, err := channel.New(ctx, channel.Config{
		Agent:        channel.AgentInfo{Login: f.agent.Login, Profile: f.agent.Profile},
		AgentDone:    f.done,
		Call:         call,
		EndpointSpec: spec,
		Starter:      f.cfg.Starter,
		InitialState: channel.StatePrering,
		Events:       f.cfg.Events,
		Registry:     f.cfg.Properties,
		Notifier:     notifier,
		Metrics:      f.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	f.adopt(ch)
	return ch, nil
}

// InitOutbound creates a precall channel for an agent-originated call.
func (f *FSM) InitOutbound(ctx context.Context, client string, mediaType channel.MediaType) (*channel.Channel, error) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil, ErrStopped
	}
	notifier := f.cfg.Notifier
	f.mu.Unlock()

	call := &channel.Call{
		ID:        uuid.New().String(),
		Type:      mediaType,
		Client:    client,
		RingPath:  f.agent.RingPath,
		MediaPath: f.agent.RingPath,
	}
	ch, err := channel.New(ctx, channel.Config{
		Agent:        channel.AgentInfo{Login: f.agent.Login, Profile: f.agent.Profile},
		AgentDone:    f.done,
		Call:         call,
		InitialState: channel.StatePrecall,
		Events:       f.cfg.Events,
		Registry:     f.cfg.Properties,
		Notifier:     notifier,
		Metrics:      f.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	f.adopt(ch)
	return ch, nil
}

// adopt tracks a channel and untracks it once it terminates.
func (f *FSM) adopt(ch *channel.Channel) {
	f.mu.Lock()
	f.channels[ch.ID()] = ch
	f.mu.Unlock()

	go func() {
		<-ch.Done()
		f.mu.Lock()
		delete(f.channels, ch.ID())
		f.mu.Unlock()
	}()
}

// Channels returns the live channels, newest last.
func (f *FSM) Channels() []*channel.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*channel.Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out
}

// resolveChannel picks the channel a legacy verb refers to: by id when
// given, the sole channel otherwise.
func (f *FSM) resolveChannel(ref string) (*channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref != "" {
		if ch, ok := f.channels[ref]; ok {
			return ch, nil
		}
		return nil, ErrNoChannel
	}
	if len(f.channels) == 1 {
		for _, ch := range f.channels {
			return ch, nil
		}
	}
	return nil, ErrNoChannel
}

// channelInState returns the first channel currently in the given state.
func (f *FSM) channelInState(s channel.State) (*channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.State() == s {
			return ch, nil
		}
	}
	return nil, ErrNoChannel
}

func (f *FSM) publishState() {
	if f.cfg.Events == nil {
		return
	}
	f.mu.Lock()
	state, data := f.state, f.stateData
	f.mu.Unlock()
	f.cfg.Events.Publish(event.New(event.TypeAgentState, f.agent.Login, map[string]any{
		"agent": f.agent.Login,
		"state": state,
		"data":  data,
	}))
}
