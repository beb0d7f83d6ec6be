// Package event implements the process-wide fan-out of agent and channel
// lifecycle notifications. Connection workers subscribe for their agent's
// events to feed long polls; the CDR journal and supervisor views subscribe
// for everything.
package event

import (
	"time"
)

// Type identifies an event family on the wire.
type Type string

const (
	// TypeInitiatedChannel announces a freshly constructed channel.
	TypeInitiatedChannel Type = "initiated_channel"

	// TypeChannelStateUpdate carries one FSM transition.
	TypeChannelStateUpdate Type = "channel_state_update"

	// TypeTerminatedChannel announces a channel's final state.
	TypeTerminatedChannel Type = "terminated_channel"

	// TypeAgentState carries availability changes of the agent itself.
	TypeAgentState Type = "agent_state"

	// TypeBlab is a free-form supervisor message pushed to an agent.
	TypeBlab Type = "blab"

	// TypeMediaPush carries media-originated payloads destined for the
	// agent client.
	TypeMediaPush Type = "mediapush"
)

// Event is one notification delivered to subscribers. Agent scopes the
// event to one login; empty means broadcast. Data is the wire-ready body
// appended to the poll reply.
type Event struct {
	Type      Type           `json:"event"`
	Timestamp int64          `json:"timestamp"`
	Agent     string         `json:"agent,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with the current time.
func New(t Type, agent string, data map[string]any) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now().Unix(),
		Agent:     agent,
		Data:      data,
	}
}
