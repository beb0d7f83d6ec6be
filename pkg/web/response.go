// Package web hosts the HTTP listener of cpxd and the wire shapes of the
// agent API. Every API reply is one of three JSON shapes; success or
// failure travels in the body, the HTTP status stays 200 except for the
// transport-band codes (403 session required, 408 poll timeout).
package web

import (
	"encoding/json"
	"net/http"
)

// errcode values returned to clients. The taxonomy is closed: raw
// internal errors never leak, unknown failures become ErrcodeUnknown.
const (
	ErrcodeNoFunction       = "NO_FUNCTION"
	ErrcodeFunctionNoExists = "FUNCTION_NOEXISTS"
	ErrcodeBadCookie        = "BAD_COOKIE"
	ErrcodeNoAgent          = "NO_AGENT"
	ErrcodeNoSalt           = "NO_SALT"
	ErrcodeDecryptFailed    = "DECRYPT_FAILED"
	ErrcodeAuthFailed       = "AUTH_FAILED"
	ErrcodeUnknown          = "UNKNOWN_ERROR"
)

// Reply is the wire shape of every API response.
type Reply struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
	Errcode string `json:"errcode,omitempty"`
}

// WriteSuccess writes the bare success shape.
func WriteSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, Reply{Success: true})
}

// WriteResult writes a success shape carrying a result value.
func WriteResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, Reply{Success: true, Result: result})
}

// WriteFailure writes a protocol failure with HTTP 200.
func WriteFailure(w http.ResponseWriter, errcode, message string) {
	writeJSON(w, http.StatusOK, Reply{Success: false, Errcode: errcode, Message: message})
}

// WriteFailureStatus writes a failure with an explicit transport status,
// used for the 403 and 408 bands.
func WriteFailureStatus(w http.ResponseWriter, status int, errcode, message string) {
	writeJSON(w, status, Reply{Success: false, Errcode: errcode, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"errcode":"UNKNOWN_ERROR"}`, http.StatusInternalServerError)
	}
}
