package apiclient

import (
	"context"
	"strconv"
)

// QueueInfo is one entry of get_queue_list.
type QueueInfo struct {
	Name string `json:"name"`
}

// Brand is one entry of get_brand_list.
type Brand struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ReleaseOption is one entry of get_release_opts.
type ReleaseOption struct {
	ID    uint   `json:"id"`
	Label string `json:"label"`
	Bias  int    `json:"bias"`
}

// QueueEntry is the add_queue result: the cluster registry entry plus
// whether the queue already existed.
type QueueEntry struct {
	Name    string `json:"name"`
	Node    string `json:"node"`
	Weight  int    `json:"weight"`
	Recipe  string `json:"recipe"`
	Existed bool   `json:"existed"`
}

// AddQueue starts (or finds) a queue in the cluster registry. recipe and
// weight are optional; zero values take the server defaults.
func (c *Client) AddQueue(ctx context.Context, name, recipe string, weight int) (QueueEntry, error) {
	var out QueueEntry
	args := []any{name}
	if recipe != "" || weight > 0 {
		args = append(args, recipe)
	}
	if weight > 0 {
		args = append(args, strconv.Itoa(weight))
	}
	err := c.call(ctx, &out, "add_queue", args...)
	return out, err
}

// QueryQueue reports whether a queue is registered anywhere in the
// cluster.
func (c *Client) QueryQueue(ctx context.Context, name string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := c.call(ctx, &out, "query_queue", name)
	return out.Exists, err
}

// QueueList fetches the configured queues.
func (c *Client) QueueList(ctx context.Context) ([]QueueInfo, error) {
	var out []QueueInfo
	err := c.call(ctx, &out, "get_queue_list")
	return out, err
}

// BrandList fetches the configured clients.
func (c *Client) BrandList(ctx context.Context) ([]Brand, error) {
	var out []Brand
	err := c.call(ctx, &out, "get_brand_list")
	return out, err
}

// ReleaseOptions fetches the configured release reasons.
func (c *Client) ReleaseOptions(ctx context.Context) ([]ReleaseOption, error) {
	var out []ReleaseOption
	err := c.call(ctx, &out, "get_release_opts")
	return out, err
}
