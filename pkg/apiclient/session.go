package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Event is one poll-delivered notification.
type Event struct {
	Type      string         `json:"event"`
	Timestamp int64          `json:"timestamp"`
	Agent     string         `json:"agent,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Poll long-polls for the next event batch. A server-side timeout comes
// back as an APIError with IsPollTimeout; callers loop on it. window must
// exceed the server's poll window so the 408 wins over the client
// timeout.
func (c *Client) Poll(ctx context.Context, window time.Duration) ([]Event, error) {
	pollClient := &http.Client{
		Jar:     c.httpClient.Jar,
		Timeout: window,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/poll", nil)
	if err != nil {
		return nil, err
	}

	resp, err := pollClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var rep struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
		Errcode string `json:"errcode,omitempty"`
		Result  struct {
			Events []Event `json:"events"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return nil, err
	}
	if !rep.Success {
		return nil, &APIError{Status: resp.StatusCode, Errcode: rep.Errcode, Message: rep.Message}
	}
	return rep.Result.Events, nil
}

// SetState changes the agent's availability; data carries the release
// reason.
func (c *Client) SetState(ctx context.Context, state, data string) error {
	if data == "" {
		return c.call(ctx, nil, "set_state", state)
	}
	return c.call(ctx, nil, "set_state", state, data)
}

// AvailableAgents lists agents currently idle with no active channel.
func (c *Client) AvailableAgents(ctx context.Context) ([]AgentSnapshot, error) {
	var out []AgentSnapshot
	err := c.call(ctx, &out, "get_avail_agents")
	return out, err
}

// SupervisorStatus dumps the channel property registry. Requires
// supervisor security level.
func (c *Client) SupervisorStatus(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "supervisor", "status")
}
