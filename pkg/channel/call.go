// Package channel implements the per-interaction state machine at the heart
// of the control plane. One Channel owns one media interaction for one
// agent: it drives the endpoint (the agent's phone), mediates between the
// agent connection and the media gateway, and publishes every lifecycle
// transition to the event manager.
package channel

import (
	"context"
	"time"
)

// MediaType classifies the interaction carried by a call.
type MediaType string

const (
	MediaVoice     MediaType = "voice"
	MediaChat      MediaType = "chat"
	MediaEmail     MediaType = "email"
	MediaVoicemail MediaType = "voicemail"
)

// RingPath selects whether ringing (or the media stream, for MediaPath)
// flows through the application or directly to the agent's phone.
type RingPath string

const (
	RingInband  RingPath = "inband"
	RingOutband RingPath = "outband"
)

// Media is the gateway-side handle of a call. The media gateway is an
// external collaborator; the channel only ever calls these two operations
// on it.
type Media interface {
	// Oncall bridges the caller to the agent.
	Oncall(ctx context.Context, callID string) error

	// Wrapup releases the media side and moves the call to disposition.
	Wrapup(ctx context.Context, callID string) error
}

// StateChange is one entry in a call's transition history.
type StateChange struct {
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Call is the interaction record a channel works on. The owning channel
// goroutine is the only writer of StateChanges; snapshots handed to other
// components are copies.
type Call struct {
	ID       string    `json:"id"`
	Type     MediaType `json:"type"`
	Client   string    `json:"client"`
	CallerID string    `json:"caller_id"`

	// RingPath is how the agent is alerted; MediaPath is how the media
	// stream flows once bridged. The two may differ: an inband ring with
	// outband media frees the endpoint as soon as the call is answered.
	RingPath  RingPath `json:"ring_path"`
	MediaPath RingPath `json:"media_path"`

	// Source is the media gateway handle for this call.
	Source Media `json:"-"`

	// AutoendWrapup arms the end_wrapup timer for this many seconds when
	// the channel enters wrapup. Zero disables it. Copied from the client
	// options at call creation.
	AutoendWrapup int `json:"autoend_wrapup,omitempty"`

	StateChanges []StateChange `json:"state_changes,omitempty"`
}

// appendState records a transition on the call history.
func (c *Call) appendState(s State, at time.Time) {
	c.StateChanges = append(c.StateChanges, StateChange{State: s, Timestamp: at})
}

// Snapshot returns a copy of the call safe to hand outside the channel
// goroutine.
func (c *Call) Snapshot() Call {
	out := *c
	out.StateChanges = make([]StateChange, len(c.StateChanges))
	copy(out.StateChanges, c.StateChanges)
	return out
}
