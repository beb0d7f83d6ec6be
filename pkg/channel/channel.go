package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/channel/endpoint"
	"github.com/opencpx/cpx/pkg/event"
	"github.com/opencpx/cpx/pkg/metrics"
)

// Source identifies which side of the channel produced an event. Several
// transitions are only legal from one side: answering on an outband phone
// arrives from the media gateway, answering in the browser arrives from the
// connection.
type Source string

const (
	SourceConnection Source = "connection"
	SourceMedia      Source = "media"
)

// AgentInfo is the channel's immutable view of its owning agent.
type AgentInfo struct {
	Login   string `json:"login"`
	Profile string `json:"profile"`
}

// Notifier receives channel assignment and state updates. The connection
// worker implements it to feed the agent's poll queue; a nil notifier is
// allowed for media-only channels.
type Notifier interface {
	ChannelUpdate(channelID string, state State, call Call)
}

// ErrStopped is returned for events sent to a terminated channel.
var ErrStopped = errors.New("channel: stopped")

// Config assembles a channel. Call, Agent and Events are mandatory.
type Config struct {
	Agent AgentInfo

	// AgentDone is closed when the owning agent FSM dies; the channel is
	// linked to it and terminates.
	AgentDone <-chan struct{}

	Call *Call

	// Endpoint is a pre-spawned live driver. When nil, EndpointSpec is
	// consulted: a non-nil spec is spawned through Starter, a nil spec is
	// the inband sentinel (no phone driver, ringing happens in the
	// browser).
	Endpoint     endpoint.Endpoint
	EndpointSpec *endpoint.Spec
	Starter      endpoint.Starter

	InitialState State

	Events   *event.Manager
	Registry *Registry
	Notifier Notifier
	Metrics  metrics.ChannelMetrics
}

type command struct {
	ev     eventName
	from   Source
	call   *Call
	callID string
	number string
	reply  chan error
}

// Channel is one running interaction state machine. All state is owned by
// the run goroutine; public methods communicate with it by message.
type Channel struct {
	id  string
	cfg Config

	inbox chan command
	done  chan struct{}

	mu    sync.Mutex
	state State
	err   error
}

// New constructs and starts a channel. Entry actions: the property is
// registered, initiated_channel is emitted, a prering channel spawns and
// rings its endpoint, and the connection is notified of the assignment.
// An endpoint start failure tears everything down and returns the error.
func New(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.Call == nil {
		return nil, errors.New("channel: call is required")
	}
	if cfg.Events == nil {
		return nil, errors.New("channel: event manager is required")
	}
	if cfg.InitialState == "" {
		cfg.InitialState = StatePrering
	}

	c := &Channel{
		id:    uuid.New().String(),
		cfg:   cfg,
		inbox: make(chan command),
		done:  make(chan struct{}),
		state: cfg.InitialState,
	}

	if cfg.Registry != nil {
		cfg.Registry.Set(c.property(cfg.InitialState))
	}
	cfg.Events.Publish(event.New(event.TypeInitiatedChannel, cfg.Agent.Login, map[string]any{
		"channel": c.id,
		"call":    cfg.Call.ID,
		"type":    string(cfg.Call.Type),
		"client":  cfg.Call.Client,
		"state":   string(cfg.InitialState),
	}))

	ep := cfg.Endpoint
	if ep == nil && cfg.EndpointSpec != nil {
		if cfg.Starter == nil {
			c.abortStart(errors.New("channel: endpoint spec without starter"))
			return nil, errors.New("channel: endpoint spec without starter")
		}
		started, err := cfg.Starter.Start(ctx, *cfg.EndpointSpec)
		if err != nil {
			err = fmt.Errorf("failed to start endpoint: %w", err)
			c.abortStart(err)
			return nil, err
		}
		ep = started
	}

	if cfg.InitialState == StatePrering && ep != nil {
		if err := ep.Ring(ctx, cfg.Call.ID); err != nil {
			ep.Hangup()
			err = fmt.Errorf("failed to ring endpoint: %w", err)
			c.abortStart(err)
			return nil, err
		}
	}

	cfg.Call.appendState(cfg.InitialState, time.Now())
	c.notify(cfg.InitialState)

	logger.Info("channel started",
		logger.KeyChannelID, c.id,
		logger.KeyAgent, cfg.Agent.Login,
		logger.KeyCallID, cfg.Call.ID,
		logger.KeyState, string(cfg.InitialState))

	go c.run(ep)
	return c, nil
}

// abortStart unwinds the entry actions when construction fails after the
// property and initiated_channel were already published.
func (c *Channel) abortStart(reason error) {
	if c.cfg.Registry != nil {
		c.cfg.Registry.Remove(c.id)
	}
	c.cfg.Events.Publish(event.New(event.TypeTerminatedChannel, c.cfg.Agent.Login, map[string]any{
		"channel": c.id,
		"call":    c.cfg.Call.ID,
		"state":   string(c.cfg.InitialState),
		"error":   reason.Error(),
	}))
	c.mu.Lock()
	c.err = reason
	c.mu.Unlock()
	close(c.done)
}

// ID returns the channel identifier.
func (c *Channel) ID() string { return c.id }

// State returns the current FSM state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the channel has terminated.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns the termination reason, nil for a normal stop. Valid once
// Done is closed.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ring delivers the ringing(call) event. Valid in prering; a call id that
// contradicts the one the channel was created with is rejected.
func (c *Channel) Ring(call *Call) error {
	return c.send(command{ev: evRinging, call: call})
}

// Oncall delivers the answer event. The guards depend on the source: see
// the transition table.
func (c *Channel) Oncall(from Source, callID string) error {
	return c.send(command{ev: evOncall, from: from, callID: callID})
}

// Wrapup moves an oncall channel to wrapup. A connection-initiated wrapup
// hangs up the media side first.
func (c *Channel) Wrapup(from Source) error {
	return c.send(command{ev: evWrapup, from: from})
}

// Stop terminates the channel. Legal while ringing (abandons the ring) and
// in wrapup (ends disposition).
func (c *Channel) Stop() error {
	return c.send(command{ev: evStop})
}

// WarmTransferHold parks the caller. Deprecated in favour of per-media warm
// transfer; retained as a pass-through for legacy clients.
func (c *Channel) WarmTransferHold() error {
	return c.send(command{ev: evWarmTransferHold})
}

// WarmTransfer3rdParty dials a third party while the caller is held.
// Deprecated alongside WarmTransferHold.
func (c *Channel) WarmTransfer3rdParty(number string) error {
	return c.send(command{ev: evWarmTransfer3rd, number: number})
}

func (c *Channel) send(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.inbox <- cmd:
		return <-cmd.reply
	case <-c.done:
		return ErrStopped
	}
}

// run is the FSM loop. It is the only goroutine that touches the call
// record, the endpoint handle and the timers.
func (c *Channel) run(ep endpoint.Endpoint) {
	var (
		wrapupTimer *time.Timer
		wrapupFire  <-chan time.Time
	)
	epDone := func() <-chan struct{} {
		if ep == nil {
			return nil
		}
		return ep.Done()
	}

	defer func() {
		if wrapupTimer != nil {
			wrapupTimer.Stop()
		}
	}()

	for {
		select {
		case cmd := <-c.inbox:
			to, terminal, err := next(c.State(), cmd.ev)
			if err == nil {
				err = c.apply(cmd, to, terminal, &ep)
			}
			if err != nil && c.cfg.Metrics != nil {
				c.cfg.Metrics.RecordInvalidEvent(string(c.State()), string(cmd.ev))
			}
			cmd.reply <- err
			if err == nil && terminal {
				c.terminate(nil, cmd.ev == evStop && c.State() == StateWrapup || cmd.ev == evEndWrapup)
				return
			}
			if err == nil && to == StateWrapup && wrapupFire == nil {
				wrapupTimer, wrapupFire = c.armWrapupTimer()
			}

		case <-epDone():
			exitErr := ep.Err()
			state := c.State()
			ep = nil
			switch state {
			case StateOncall:
				// media dropped or phone hung up: disposition time
				c.transition(StateOncall, StateWrapup)
				wrapupTimer, wrapupFire = c.armWrapupTimer()
			case StateWrapup:
				// already past the call; a late driver exit is noise
			default:
				if exitErr == nil {
					exitErr = errors.New("endpoint exited")
				}
				c.terminate(fmt.Errorf("endpoint exited in %s: %w", state, exitErr), false)
				return
			}

		case <-wrapupFire:
			if c.State() == StateWrapup {
				c.terminate(nil, true)
				return
			}
			wrapupFire = nil

		case <-c.agentDone():
			c.terminate(errors.New("agent exited"), c.State() == StateWrapup)
			return
		}
	}
}

func (c *Channel) agentDone() <-chan struct{} {
	return c.cfg.AgentDone
}

// apply performs the guards and side effects for one accepted edge. A
// guard failure surfaces as ErrInvalid with no state change.
func (c *Channel) apply(cmd command, to State, terminal bool, ep *endpoint.Endpoint) error {
	from := c.State()
	call := c.cfg.Call

	switch cmd.ev {
	case evRinging:
		if cmd.call != nil && cmd.call.ID != call.ID {
			return ErrInvalid
		}

	case evOncall:
		switch from {
		case StateRinging:
			switch {
			case cmd.from == SourceConnection && *ep == nil:
				// inband endpoint: the browser is the phone
				if err := c.mediaOncall(); err != nil {
					return err
				}
			case cmd.from == SourceConnection && call.RingPath == RingInband && call.MediaPath == RingOutband:
				if err := c.mediaOncall(); err != nil {
					return err
				}
				(*ep).Hangup()
				*ep = nil
			case cmd.from == SourceMedia && cmd.callID == call.ID:
				// answered on the phone
			default:
				return ErrInvalid
			}
		case StatePrecall:
			if cmd.callID != call.ID && cmd.callID != call.Client {
				return ErrInvalid
			}
		case StateWarmTransferHold, StateWarmTransfer3rd:
			// retrieve from hold
		}

	case evWrapup:
		if cmd.from == SourceConnection {
			if err := c.mediaWrapup(); err != nil {
				return err
			}
		}

	case evStop:
		if from == StateRinging && *ep != nil {
			(*ep).Hangup()
			*ep = nil
		}

	case evWarmTransferHold, evWarmTransfer3rd:
		// pass-through, no media coupling
	}

	if terminal {
		return nil
	}
	c.transition(from, to)
	return nil
}

func (c *Channel) mediaOncall() error {
	if c.cfg.Call.Source == nil {
		return nil
	}
	if err := c.cfg.Call.Source.Oncall(context.Background(), c.cfg.Call.ID); err != nil {
		return fmt.Errorf("media oncall failed: %w", err)
	}
	return nil
}

func (c *Channel) mediaWrapup() error {
	if c.cfg.Call.Source == nil {
		return nil
	}
	if err := c.cfg.Call.Source.Wrapup(context.Background(), c.cfg.Call.ID); err != nil {
		return fmt.Errorf("media wrapup failed: %w", err)
	}
	return nil
}

// property snapshots the channel into its registry descriptor for the
// given state.
func (c *Channel) property(state State) Property {
	return Property{
		ChannelID: c.id,
		Login:     c.cfg.Agent.Login,
		Profile:   c.cfg.Agent.Profile,
		Type:      c.cfg.Call.Type,
		Client:    c.cfg.Call.Client,
		CallerID:  c.cfg.Call.CallerID,
		State:     state,
	}
}

// transition commits a state change: call history, property, broadcast,
// connection notification, metrics.
func (c *Channel) transition(from, to State) {
	now := time.Now()

	c.mu.Lock()
	c.cfg.Call.appendState(to, now)
	c.state = to
	c.mu.Unlock()

	prop := c.property(to)
	if c.cfg.Registry != nil {
		c.cfg.Registry.Set(prop)
	}

	c.cfg.Events.Publish(event.Event{
		Type:      event.TypeChannelStateUpdate,
		Timestamp: now.Unix(),
		Agent:     c.cfg.Agent.Login,
		Data: map[string]any{
			"channel":   c.id,
			"call":      c.cfg.Call.ID,
			"state":     string(to),
			"old_state": string(from),
			"client":    c.cfg.Call.Client,
			"caller_id": c.cfg.Call.CallerID,
		},
	})

	c.notify(to)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordTransition(string(from), string(to))
	}
	logger.Debug("channel transition",
		logger.KeyChannelID, c.id,
		logger.KeyFromState, string(from),
		logger.KeyToState, string(to))
}

func (c *Channel) notify(state State) {
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.ChannelUpdate(c.id, state, c.cfg.Call.Snapshot())
	}
}

// armWrapupTimer starts the end_wrapup countdown when the client options
// carry a positive autoend_wrapup.
func (c *Channel) armWrapupTimer() (*time.Timer, <-chan time.Time) {
	secs := c.cfg.Call.AutoendWrapup
	if secs <= 0 {
		return nil, nil
	}
	t := time.NewTimer(time.Duration(secs) * time.Second)
	return t, t.C
}

// terminate finishes the channel: property removal, terminated_channel
// broadcast, and the endwrapup journal record when the channel ends from
// wrapup.
func (c *Channel) terminate(reason error, fromWrapup bool) {
	final := c.State()
	if c.cfg.Registry != nil {
		c.cfg.Registry.Remove(c.id)
	}

	data := map[string]any{
		"channel": c.id,
		"call":    c.cfg.Call.ID,
		"state":   string(final),
		"client":  c.cfg.Call.Client,
	}
	if fromWrapup {
		data["endwrapup"] = true
	}
	if reason != nil {
		data["error"] = reason.Error()
	}
	c.cfg.Events.Publish(event.New(event.TypeTerminatedChannel, c.cfg.Agent.Login, data))

	c.mu.Lock()
	c.err = reason
	c.mu.Unlock()

	logger.Info("channel terminated",
		logger.KeyChannelID, c.id,
		logger.KeyCallID, c.cfg.Call.ID,
		logger.KeyState, string(final),
		logger.Err(reason))
	close(c.done)
}

// CallSnapshot returns a copy of the channel's call record.
func (c *Channel) CallSnapshot() Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Call.Snapshot()
}
