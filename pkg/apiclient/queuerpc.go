package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opencpx/cpx/pkg/queue"
)

// LeaderClient is the HTTP implementation of queue.LeaderRPC: a follower
// talking to the leader's /cluster/queues endpoints. A leadership change
// surfaces as queue.ErrNotLeader so the manager retries against the new
// leader on the next cluster event.
type LeaderClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLeaderClient creates a registry client for one peer node.
func NewLeaderClient(baseURL string) *LeaderClient {
	return &LeaderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

var _ queue.LeaderRPC = (*LeaderClient)(nil)

// Register publishes a queue entry into the leader's view.
func (l *LeaderClient) Register(ctx context.Context, e queue.Entry) error {
	return l.post(ctx, "/cluster/queues/register", e)
}

// Deregister removes a node-owned entry from the leader's view.
func (l *LeaderClient) Deregister(ctx context.Context, name, node string) error {
	return l.post(ctx, "/cluster/queues/deregister", map[string]string{
		"name": name,
		"node": node,
	})
}

// Lookup asks the leader for one entry.
func (l *LeaderClient) Lookup(ctx context.Context, name string) (queue.Entry, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.baseURL+"/cluster/queues/"+url.PathEscape(name), nil)
	if err != nil {
		return queue.Entry{}, false, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return queue.Entry{}, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var e queue.Entry
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			return queue.Entry{}, false, err
		}
		return e, true, nil
	case http.StatusNotFound:
		return queue.Entry{}, false, nil
	default:
		return queue.Entry{}, false, rpcStatusError(resp.StatusCode)
	}
}

// List fetches the leader's full registry.
func (l *LeaderClient) List(ctx context.Context) ([]queue.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/cluster/queues", nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, rpcStatusError(resp.StatusCode)
	}
	var entries []queue.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *LeaderClient) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return rpcStatusError(resp.StatusCode)
	}
	return nil
}

func rpcStatusError(status int) error {
	if status == http.StatusConflict {
		return queue.ErrNotLeader
	}
	return fmt.Errorf("queue rpc failed with status %d", status)
}
