// Package apiclient speaks the cpxd agent API: a cookie jar carries the
// session, functions are form-posted to /api, and every reply is one of
// the three JSON shapes. cpxctl is the main consumer; the package also
// provides the follower-to-leader queue registry client.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one API round trip. Poll calls override it.
const DefaultTimeout = 30 * time.Second

// Client is a cpxd API client bound to one session cookie.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client with a fresh cookie jar. The first request mints
// the session cookie server-side.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: DefaultTimeout,
		},
	}, nil
}

// reply mirrors the wire shape of every API response.
type reply struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
	Errcode string          `json:"errcode,omitempty"`
}

// Call posts one function through the JSON envelope and returns the raw
// result. args may be strings or a trailing options object.
func (c *Client) Call(ctx context.Context, function string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	envelope, err := json.Marshal(map[string]any{
		"function": function,
		"args":     args,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.postForm(ctx, "/api", url.Values{"request": {string(envelope)}})
}

// postForm posts a form to an API path and unwraps the reply envelope.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.roundTrip(req)
}

// get issues a GET against a legacy API path and unwraps the reply.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.roundTrip(req)
}

func (c *Client) roundTrip(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var rep reply
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return nil, fmt.Errorf("malformed reply (status %d): %w", resp.StatusCode, err)
	}
	if !rep.Success {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Errcode: rep.Errcode,
			Message: rep.Message,
		}
	}
	return rep.Result, nil
}

// call is Call plus result decoding.
func (c *Client) call(ctx context.Context, result any, function string, args ...any) error {
	raw, err := c.Call(ctx, function, args...)
	if err != nil {
		return err
	}
	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", function, err)
		}
	}
	return nil
}
