package apiclient

import "fmt"

// APIError is a failure reply from cpxd: the protocol errcode plus the
// HTTP status it travelled on.
type APIError struct {
	Status  int    `json:"-"`
	Errcode string `json:"errcode,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Errcode != "" {
		return fmt.Sprintf("%s: %s", e.Errcode, e.Message)
	}
	return e.Message
}

// IsAuthFailed reports a rejected login.
func (e *APIError) IsAuthFailed() bool {
	return e.Errcode == "AUTH_FAILED"
}

// IsBadCookie reports an unknown session; the server already set a fresh
// cookie on the same response.
func (e *APIError) IsBadCookie() bool {
	return e.Errcode == "BAD_COOKIE"
}

// IsSessionRequired reports a per-agent call without a live login.
func (e *APIError) IsSessionRequired() bool {
	return e.Status == 403
}

// IsPollTimeout reports a long poll that expired with nothing to deliver.
func (e *APIError) IsPollTimeout() bool {
	return e.Status == 408
}
