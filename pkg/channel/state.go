package channel

import "errors"

// State is one node of the channel state machine.
type State string

const (
	StatePrering          State = "prering"
	StateRinging          State = "ringing"
	StatePrecall          State = "precall"
	StateOncall           State = "oncall"
	StateWarmTransferHold State = "warmtransfer_hold"
	StateWarmTransfer3rd  State = "warmtransfer_3rd_party"
	StateWrapup           State = "wrapup"
)

// ParseState validates a client-supplied initial state.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePrering, StateRinging, StatePrecall, StateOncall,
		StateWarmTransferHold, StateWarmTransfer3rd, StateWrapup:
		return State(s), nil
	}
	return "", errors.New("unknown channel state " + s)
}

// eventName identifies an input to the state machine.
type eventName string

const (
	evRinging          eventName = "ringing"
	evOncall           eventName = "oncall"
	evWrapup           eventName = "wrapup"
	evStop             eventName = "stop"
	evEndWrapup        eventName = "end_wrapup"
	evEndpointExit     eventName = "endpoint_exit"
	evWarmTransferHold eventName = "warmtransfer_hold"
	evWarmTransfer3rd  eventName = "warmtransfer_3rd_party"
)

// ErrInvalid is returned for events not permitted in the current state.
// The channel stays where it is and performs no side effects.
var ErrInvalid = errors.New("channel: invalid event for current state")

// transition is one permitted edge of the machine. The empty To marks a
// terminating edge. Edge-specific guards (call id matching, endpoint
// shape) live in the handlers; this table is the reachability contract.
type transition struct {
	from  State
	event eventName
	to    State
}

// transitions is the full edge set. Anything not listed is invalid.
// The warm-transfer edges are retained for legacy clients; per-media warm
// transfer supersedes them and they act as pass-through states.
var transitions = []transition{
	{StatePrering, evRinging, StateRinging},
	{StatePrering, evEndpointExit, ""},

	{StateRinging, evOncall, StateOncall},
	{StateRinging, evStop, ""},
	{StateRinging, evEndpointExit, ""},

	{StatePrecall, evOncall, StateOncall},
	{StatePrecall, evEndpointExit, ""},

	{StateOncall, evWrapup, StateWrapup},
	{StateOncall, evEndpointExit, StateWrapup},
	{StateOncall, evWarmTransferHold, StateWarmTransferHold},

	{StateWarmTransferHold, evWarmTransfer3rd, StateWarmTransfer3rd},
	{StateWarmTransferHold, evOncall, StateOncall},
	{StateWarmTransferHold, evEndpointExit, ""},

	{StateWarmTransfer3rd, evOncall, StateOncall},
	{StateWarmTransfer3rd, evWarmTransferHold, StateWarmTransferHold},
	{StateWarmTransfer3rd, evEndpointExit, ""},

	{StateWrapup, evStop, ""},
	{StateWrapup, evEndWrapup, ""},
}

// next resolves the target state for an event, or ErrInvalid. A true
// terminal flag means the edge ends the channel.
func next(from State, ev eventName) (to State, terminal bool, err error) {
	for _, t := range transitions {
		if t.from == from && t.event == ev {
			return t.to, t.to == "", nil
		}
	}
	return "", false, ErrInvalid
}
