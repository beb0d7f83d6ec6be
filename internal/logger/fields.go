package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that logs remain
// queryable in aggregation systems.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// HTTP & API
	// ========================================================================
	KeyFunction  = "function"   // API function/verb name (login, poll, set_state, ...)
	KeyPath      = "path"       // HTTP request path
	KeyMethod    = "method"     // HTTP method
	KeyStatus    = "status"     // HTTP status code
	KeyErrcode   = "errcode"    // protocol error code returned to the client
	KeyRequestID = "request_id" // middleware-assigned request id

	// ========================================================================
	// Session & Agent
	// ========================================================================
	KeySessionID = "session_id" // session cookie value
	KeyAgent     = "agent"      // agent login
	KeyProfile   = "profile"    // agent profile name
	KeyClientIP  = "client_ip"  // client IP address
	KeyLanguage  = "language"   // negotiated UI language

	// ========================================================================
	// Channels & Calls
	// ========================================================================
	KeyChannelID = "channel_id" // channel identifier
	KeyCallID    = "call_id"    // call identifier
	KeyMediaType = "media_type" // voice, chat, email, voicemail
	KeyEndpoint  = "endpoint"   // endpoint driver type
	KeyState     = "state"      // FSM state
	KeyFromState = "from_state" // FSM transition source
	KeyToState   = "to_state"   // FSM transition target
	KeyRingPath  = "ring_path"  // inband or outband
	KeyClient    = "client"     // client/brand id on the call

	// ========================================================================
	// Queues & Cluster
	// ========================================================================
	KeyQueue    = "queue"    // queue name
	KeyWeight   = "weight"   // queue weight
	KeyPriority = "priority" // queued call priority
	KeyNode     = "node"     // cluster node name
	KeyLeader   = "leader"   // current leader node name
	KeyMembers  = "members"  // live member count

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyCount      = "count"       // generic count
	KeyStoreType  = "store_type"  // sqlite or postgres
)

// Err returns a slog attribute for an error value, tolerating nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// FormatDuration renders a millisecond duration for human-readable output
func FormatDuration(ms float64) string {
	if ms < 1 {
		return fmt.Sprintf("%.0fµs", ms*1000)
	}
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}
