package agent

import (
	"context"
	"fmt"

	"github.com/opencpx/cpx/pkg/channel"
)

// apiVerbs is the explicit allowlist of per-agent API functions. Anything
// outside it returns ErrUnknownFunction without touching the FSM; verb
// dispatch deliberately avoids any reflection.
var apiVerbs = map[string]struct{}{
	"state":                  {},
	"set_state":              {},
	"ack":                    {},
	"err":                    {},
	"dial":                   {},
	"get_avail_agents":       {},
	"agent_transfer":         {},
	"warm_transfer":          {},
	"warm_transfer_complete": {},
	"warm_transfer_cancel":   {},
	"queue_transfer":         {},
	"init_outbound":          {},
	"mediapush":              {},
	"supervisor":             {},
}

// HandleAPI executes one per-agent API verb. The result is the value
// placed in the reply's result field; a nil result with a nil error is the
// bare success shape.
func (f *FSM) HandleAPI(ctx context.Context, verb string, args []string) (any, error) {
	if _, ok := apiVerbs[verb]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, verb)
	}

	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch verb {
	case "state", "set_state":
		if arg(0) == "" {
			return nil, fmt.Errorf("%w: state is required", ErrUnknownState)
		}
		return nil, f.SetState(arg(0), arg(1))

	case "ack":
		// agent accepted the ringing call in the browser
		ch, err := f.resolveChannel(arg(0))
		if err != nil {
			return nil, err
		}
		return nil, ch.Oncall(channel.SourceConnection, ch.CallSnapshot().ID)

	case "err":
		// agent rejected the ringing call; the channel dies and the call
		// goes back to its queue
		ch, err := f.resolveChannel(arg(0))
		if err != nil {
			return nil, err
		}
		return nil, ch.Stop()

	case "dial":
		// connect the outbound precall to the dialed number
		ch, err := f.channelInState(channel.StatePrecall)
		if err != nil {
			return nil, err
		}
		return nil, ch.Oncall(channel.SourceConnection, ch.CallSnapshot().ID)

	case "get_avail_agents":
		if f.cfg.Agents == nil {
			return []Snapshot{}, nil
		}
		return f.cfg.Agents.Available(), nil

	case "agent_transfer":
		return nil, f.agentTransfer(ctx, arg(0))

	case "warm_transfer":
		ch, err := f.channelInState(channel.StateOncall)
		if err != nil {
			return nil, err
		}
		if err := ch.WarmTransferHold(); err != nil {
			return nil, err
		}
		return nil, ch.WarmTransfer3rdParty(arg(0))

	case "warm_transfer_complete":
		// the caller stays with the third party; this agent goes to wrapup
		ch, err := f.channelInState(channel.StateWarmTransfer3rd)
		if err != nil {
			return nil, err
		}
		return nil, ch.Wrapup(channel.SourceConnection)

	case "warm_transfer_cancel":
		// retrieve the caller back
		ch, err := f.channelInState(channel.StateWarmTransfer3rd)
		if err != nil {
			ch, err = f.channelInState(channel.StateWarmTransferHold)
		}
		if err != nil {
			return nil, err
		}
		return nil, ch.Oncall(channel.SourceConnection, ch.CallSnapshot().ID)

	case "queue_transfer":
		return nil, f.queueTransfer(ctx, arg(0))

	case "init_outbound":
		mediaType := channel.MediaVoice
		if arg(1) != "" {
			mediaType = channel.MediaType(arg(1))
		}
		ch, err := f.InitOutbound(ctx, arg(0), mediaType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"channel": ch.ID()}, nil

	case "mediapush":
		f.cfg.Events.Publish(eventMediaPush(f.agent.Login, args))
		return nil, nil

	case "supervisor":
		return f.handleSupervisor(args)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, verb)
}

// agentTransfer rings another agent with this agent's current call and
// moves this side to wrapup.
func (f *FSM) agentTransfer(ctx context.Context, target string) error {
	if f.cfg.Agents == nil {
		return ErrNoChannel
	}
	other, ok := f.cfg.Agents.Get(target)
	if !ok {
		return fmt.Errorf("agent %q is not logged in", target)
	}

	ch, err := f.channelInState(channel.StateOncall)
	if err != nil {
		return err
	}
	call := ch.CallSnapshot()
	transferred := call
	transferred.StateChanges = nil
	transferred.RingPath = ""
	transferred.MediaPath = ""
	if _, err := other.Ring(ctx, &transferred); err != nil {
		return err
	}
	return ch.Wrapup(channel.SourceConnection)
}

// queueTransfer puts the current call back on a queue and wraps up.
func (f *FSM) queueTransfer(ctx context.Context, queueName string) error {
	if f.cfg.Queues == nil {
		return fmt.Errorf("queue transfer unavailable")
	}
	ch, err := f.channelInState(channel.StateOncall)
	if err != nil {
		return err
	}
	if err := f.cfg.Queues.Transfer(ctx, queueName, ch.CallSnapshot()); err != nil {
		return err
	}
	return ch.Wrapup(channel.SourceConnection)
}

// handleSupervisor serves the /supervisor/... surface: status dumps the
// channel property registry, blab pushes a message to one agent.
func (f *FSM) handleSupervisor(args []string) (any, error) {
	if !f.agent.IsSupervisor() {
		return nil, ErrNotSupervisor
	}
	sub := ""
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "status":
		if f.cfg.Properties == nil {
			return []channel.Property{}, nil
		}
		return f.cfg.Properties.List(), nil

	case "blab":
		if len(args) < 3 {
			return nil, fmt.Errorf("blab requires an agent and a message")
		}
		f.cfg.Events.Publish(eventBlab(args[1], args[2]))
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: supervisor %s", ErrUnknownFunction, sub)
	}
}
