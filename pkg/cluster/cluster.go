// Package cluster provides node membership and leader election for the
// replicated queue registry. Membership rides on hashicorp/memberlist
// (SWIM gossip); leadership is deterministic: the lexicographically
// smallest live node name leads. Within any connected component that
// yields at most one leader, and the queue manager's surrender protocol
// reconciles the registry after a partition heals.
package cluster

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/opencpx/cpx/internal/logger"
)

// EventType classifies a leadership or membership change.
type EventType string

const (
	// EventElected fires on the node that just became leader.
	EventElected EventType = "elected"

	// EventSurrendered fires on a node that just lost leadership.
	EventSurrendered EventType = "surrendered"

	// EventLeaderChanged fires on followers when leadership moved between
	// two other nodes.
	EventLeaderChanged EventType = "leader_changed"

	// EventNodeDown fires when a member left or was declared dead.
	EventNodeDown EventType = "node_down"

	// EventNodeJoined fires when a new member appeared.
	EventNodeJoined EventType = "node_joined"
)

// Event is one membership notification.
type Event struct {
	Type   EventType
	Node   string
	Leader string
}

// Elector is the view of the cluster the queue manager consumes. Tests
// drive a FakeElector; production uses Cluster.
type Elector interface {
	// Self returns this node's name.
	Self() string

	// Leader returns the current leader's name.
	Leader() string

	// IsLeader reports whether this node leads.
	IsLeader() bool

	// Events returns the stream of leadership and membership changes.
	// The channel is closed on shutdown.
	Events() <-chan Event
}

// Config configures cluster membership.
type Config struct {
	// NodeName must be unique across the cluster. Default: the hostname.
	NodeName string `mapstructure:"node_name" yaml:"node_name"`

	// BindAddr/BindPort is the gossip listen address. Default
	// 0.0.0.0:7946.
	BindAddr string `mapstructure:"bind_addr" yaml:"bind_addr"`
	BindPort int    `mapstructure:"bind_port" yaml:"bind_port"`

	// Join is the list of existing members to contact at startup. Empty
	// bootstraps a single-node cluster.
	Join []string `mapstructure:"join" yaml:"join"`

	// ConvergenceWindow bounds how long replicas may disagree after a
	// heal before the leader view is canonical.
	ConvergenceWindow time.Duration `mapstructure:"convergence_window" yaml:"convergence_window"`
}

// ApplyDefaults fills in missing values.
func (c *Config) ApplyDefaults() {
	if c.BindAddr == "" {
		c.BindAddr = "0.0.0.0"
	}
	if c.BindPort == 0 {
		c.BindPort = 7946
	}
	if c.ConvergenceWindow == 0 {
		c.ConvergenceWindow = 10 * time.Second
	}
}

// Cluster is the memberlist-backed Elector.
type Cluster struct {
	cfg Config
	ml  *memberlist.Memberlist

	mu      sync.Mutex
	members map[string]struct{}
	leader  string
	closed  bool

	events chan Event
}

// New joins (or bootstraps) the cluster. The node is a member once New
// returns; leadership events start flowing immediately, beginning with
// the election outcome of the initial membership.
func New(cfg Config) (*Cluster, error) {
	cfg.ApplyDefaults()

	c := &Cluster{
		cfg:     cfg,
		members: make(map[string]struct{}),
		events:  make(chan Event, 16),
	}

	mlc := memberlist.DefaultLANConfig()
	if cfg.NodeName != "" {
		mlc.Name = cfg.NodeName
	}
	mlc.BindAddr = cfg.BindAddr
	mlc.BindPort = cfg.BindPort
	mlc.AdvertisePort = cfg.BindPort
	mlc.Events = (*eventDelegate)(c)
	mlc.LogOutput = logger.Writer("memberlist")

	ml, err := memberlist.Create(mlc)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	c.ml = ml
	c.cfg.NodeName = ml.LocalNode().Name

	if len(cfg.Join) > 0 {
		if n, err := ml.Join(cfg.Join); err != nil {
			logger.Warn("cluster join incomplete",
				logger.KeyNode, c.cfg.NodeName,
				logger.KeyCount, n,
				logger.Err(err))
		}
	}
	return c, nil
}

// Self returns this node's name.
func (c *Cluster) Self() string { return c.cfg.NodeName }

// Leader returns the current leader name.
func (c *Cluster) Leader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader
}

// IsLeader reports whether this node currently leads.
func (c *Cluster) IsLeader() bool {
	return c.Leader() == c.Self()
}

// Events returns the leadership/membership stream.
func (c *Cluster) Events() <-chan Event { return c.events }

// Members returns the live member names, sorted.
func (c *Cluster) Members() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.members))
	for name := range c.members {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ConvergenceWindow returns the configured post-heal convergence bound.
func (c *Cluster) ConvergenceWindow() time.Duration {
	return c.cfg.ConvergenceWindow
}

// Leave broadcasts departure and shuts the transport down.
func (c *Cluster) Leave(timeout time.Duration) error {
	if err := c.ml.Leave(timeout); err != nil {
		return fmt.Errorf("failed to leave cluster: %w", err)
	}
	err := c.ml.Shutdown()

	c.mu.Lock()
	closed := c.closed
	c.closed = true
	c.mu.Unlock()
	if !closed {
		close(c.events)
	}
	return err
}

// memberChanged recomputes the leader after a membership change and emits
// the resulting events.
func (c *Cluster) memberChanged(joined bool, node string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if joined {
		c.members[node] = struct{}{}
	} else {
		delete(c.members, node)
	}

	old := c.leader
	leader := ""
	for name := range c.members {
		if leader == "" || name < leader {
			leader = name
		}
	}
	c.leader = leader
	self := c.cfg.NodeName
	c.mu.Unlock()

	if joined {
		c.emit(Event{Type: EventNodeJoined, Node: node, Leader: leader})
	} else {
		c.emit(Event{Type: EventNodeDown, Node: node, Leader: leader})
	}

	if leader == old {
		return
	}
	logger.Info("cluster leadership changed",
		logger.KeyNode, self,
		logger.KeyLeader, leader)
	switch {
	case leader == self:
		c.emit(Event{Type: EventElected, Node: self, Leader: leader})
	case old == self:
		c.emit(Event{Type: EventSurrendered, Node: self, Leader: leader})
	default:
		c.emit(Event{Type: EventLeaderChanged, Node: node, Leader: leader})
	}
}

// emit never blocks gossip: when the consumer lags, the oldest event is
// dropped. The queue manager resynchronises from the leader view anyway.
func (c *Cluster) emit(e Event) {
	select {
	case c.events <- e:
		return
	default:
	}
	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- e:
	default:
	}
}

// eventDelegate adapts memberlist callbacks onto the cluster. Declared as
// a type alias shape so the memberlist dependency stays at the edge.
type eventDelegate Cluster

func (d *eventDelegate) NotifyJoin(n *memberlist.Node) {
	(*Cluster)(d).memberChanged(true, n.Name)
}

func (d *eventDelegate) NotifyLeave(n *memberlist.Node) {
	(*Cluster)(d).memberChanged(false, n.Name)
}

func (d *eventDelegate) NotifyUpdate(*memberlist.Node) {}
