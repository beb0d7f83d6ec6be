package metrics

import (
	"time"
)

// WebMetrics provides observability for the HTTP dispatcher and session
// layer.
//
// Implementations can collect metrics about API requests, session lifecycle,
// and long-poll behaviour. This interface is optional - pass nil to disable
// metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	webMetrics := prometheus.NewWebMetrics()
//	server := web.NewServer(config, webMetrics)
//
//	// Without metrics (pass nil for zero overhead)
//	server := web.NewServer(config, nil)
type WebMetrics interface {
	// RecordRequest records a completed API request.
	//
	// Parameters:
	//   - function: API verb (e.g., "login", "poll", "get_salt")
	//   - status: HTTP status code of the reply
	//   - duration: Time taken to process the request
	//   - errcode: Application error code if the request failed
	//     (e.g., "AUTH_FAILED"), empty if successful
	RecordRequest(function string, status int, duration time.Duration, errcode string)

	// RecordSessionIssued increments the counter of freshly minted session
	// cookies.
	RecordSessionIssued()

	// RecordSessionRemoved increments the counter of sessions dropped after
	// a connection worker died or logged out.
	RecordSessionRemoved()

	// SetActiveSessions updates the current session table size.
	SetActiveSessions(count int)

	// RecordLogin records a login attempt and its outcome.
	//
	// Parameters:
	//   - result: "success" or the errcode of the failure
	RecordLogin(result string)

	// RecordPollTimeout increments the counter of polls answered with 408.
	RecordPollTimeout()

	// RecordPollSuperseded increments the counter of polls displaced by a
	// newer poll on the same connection.
	RecordPollSuperseded()

	// SetActivePolls updates the number of currently suspended pollers.
	SetActivePolls(count int)
}
