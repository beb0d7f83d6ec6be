package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for API and call-handling spans.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// Client attributes
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// API dispatch attributes
	AttrAPIFunction = "api.function"
	AttrAPIErrcode  = "api.errcode"
	AttrSessionID   = "session.id"

	// Agent attributes
	AttrAgentLogin   = "agent.login"
	AttrAgentProfile = "agent.profile"
	AttrAgentState   = "agent.state"

	// Channel attributes
	AttrChannelID    = "channel.id"
	AttrChannelState = "channel.state"
	AttrCallID       = "call.id"
	AttrCallType     = "call.type"
	AttrCallClient   = "call.client"

	// Queue attributes
	AttrQueueName = "queue.name"
	AttrQueueNode = "queue.node"

	// Store attributes
	AttrStoreType = "store.type"
)

// Span names.
// Format: <component>.<operation>
const (
	// Root span for one dispatched API function
	SpanAPIRequest = "api.request"

	// Session lifecycle
	SpanLogin  = "session.login"
	SpanLogout = "session.logout"
	SpanPoll   = "session.poll"

	// Queue registry operations against the leader
	SpanQueueRegister   = "queue.register"
	SpanQueueDeregister = "queue.deregister"
	SpanQueueLookup     = "queue.lookup"
	SpanQueueList       = "queue.list"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// APIFunction returns an attribute for the dispatched function name
func APIFunction(fn string) attribute.KeyValue {
	return attribute.String(AttrAPIFunction, fn)
}

// APIErrcode returns an attribute for the protocol error code
func APIErrcode(code string) attribute.KeyValue {
	return attribute.String(AttrAPIErrcode, code)
}

// SessionID returns an attribute for the session cookie value
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// AgentLogin returns an attribute for the agent login name
func AgentLogin(login string) attribute.KeyValue {
	return attribute.String(AttrAgentLogin, login)
}

// AgentProfile returns an attribute for the agent profile
func AgentProfile(profile string) attribute.KeyValue {
	return attribute.String(AttrAgentProfile, profile)
}

// AgentState returns an attribute for the agent availability state
func AgentState(state string) attribute.KeyValue {
	return attribute.String(AttrAgentState, state)
}

// ChannelID returns an attribute for the channel identifier
func ChannelID(id string) attribute.KeyValue {
	return attribute.String(AttrChannelID, id)
}

// ChannelState returns an attribute for the channel FSM state
func ChannelState(state string) attribute.KeyValue {
	return attribute.String(AttrChannelState, state)
}

// CallID returns an attribute for the call identifier
func CallID(id string) attribute.KeyValue {
	return attribute.String(AttrCallID, id)
}

// CallType returns an attribute for the media type of a call
func CallType(t string) attribute.KeyValue {
	return attribute.String(AttrCallType, t)
}

// CallClient returns an attribute for the client (brand) of a call
func CallClient(client string) attribute.KeyValue {
	return attribute.String(AttrCallClient, client)
}

// QueueName returns an attribute for a queue name
func QueueName(name string) attribute.KeyValue {
	return attribute.String(AttrQueueName, name)
}

// QueueNode returns an attribute for the node serving a queue
func QueueNode(node string) attribute.KeyValue {
	return attribute.String(AttrQueueNode, node)
}

// StoreType returns an attribute for the store backend type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// StartAPISpan starts a span for one dispatched API function.
// This is a convenience function that sets common attributes.
func StartAPISpan(ctx context.Context, function string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		APIFunction(function),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanAPIRequest, trace.WithAttributes(allAttrs...))
}

// StartQueueSpan starts a span for a queue registry operation.
func StartQueueSpan(ctx context.Context, operation string, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		QueueName(name),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "queue."+operation, trace.WithAttributes(allAttrs...))
}

// StartChannelSpan starts a span for a channel lifecycle operation.
func StartChannelSpan(ctx context.Context, operation string, channelID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		ChannelID(channelID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "channel."+operation, trace.WithAttributes(allAttrs...))
}
