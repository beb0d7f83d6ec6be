package agent

import (
	"context"
	"sync"
	"time"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/channel/endpoint"
	"github.com/opencpx/cpx/pkg/event"
	"github.com/opencpx/cpx/pkg/metrics"
)

// DefaultIdleTimeout is how long a connection survives without a
// keep-alive before it reclaims itself.
const DefaultIdleTimeout = 60 * time.Second

// PollResult is the outcome of one long poll. Killed means the worker
// terminated while the poll was suspended; the handler answers 408 and the
// next request gets a fresh cookie.
type PollResult struct {
	Killed bool          `json:"-"`
	Events []event.Event `json:"events"`
}

type poller struct {
	ch chan PollResult
}

type apiRequest struct {
	ctx   context.Context
	verb  string
	args  []string
	reply chan apiReply
}

type apiReply struct {
	result any
	err    error
}

// ConnConfig assembles a connection worker.
type ConnConfig struct {
	Agent       Agent
	FSM         *FSM
	Events      *event.Manager
	IdleTimeout time.Duration
	Metrics     metrics.WebMetrics
}

// Connection is the per-session worker fronting one logged-in agent. It
// owns the poll queue and forwards API verbs to the agent FSM. All state
// lives in the run goroutine; the exported methods are message sends.
type Connection struct {
	agent Agent
	fsm   *FSM
	cfg   ConnConfig

	sub       <-chan event.Event
	pollCh    chan *poller
	unpollCh  chan *poller
	apiCh     chan apiRequest
	keepalive chan struct{}
	dumpCh    chan chan Snapshot
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewConnection starts a worker for a freshly authenticated agent. The
// worker subscribes to the agent's events and installs itself as the
// channel notifier.
func NewConnection(cfg ConnConfig) *Connection {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	c := &Connection{
		agent:     cfg.Agent,
		fsm:       cfg.FSM,
		cfg:       cfg,
		sub:       cfg.Events.SubscribeAgent(cfg.Agent.Login),
		pollCh:    make(chan *poller),
		unpollCh:  make(chan *poller),
		apiCh:     make(chan apiRequest),
		keepalive: make(chan struct{}, 1),
		dumpCh:    make(chan chan Snapshot),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if cfg.FSM != nil {
		cfg.FSM.setNotifier(c)
	}
	go c.run()
	return c
}

// Done is closed when the worker terminates. The session table watches it.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Agent returns the immutable agent record.
func (c *Connection) Agent() Agent { return c.agent }

// KeepAlive resets the idle timer. The dispatcher calls it on every
// request carrying a valid cookie.
func (c *Connection) KeepAlive() {
	select {
	case c.keepalive <- struct{}{}:
	case <-c.done:
	default:
	}
}

// SetEndpoint installs the endpoint descriptor resolved at login.
func (c *Connection) SetEndpoint(spec *endpoint.Spec) {
	c.fsm.SetEndpoint(spec)
}

// DumpAgent returns the agent snapshot.
func (c *Connection) DumpAgent() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case c.dumpCh <- reply:
		return <-reply
	case <-c.done:
		return c.fsm.Dump()
	}
}

// API forwards one verb to the agent FSM through the worker inbox, which
// serialises all requests of the session.
func (c *Connection) API(ctx context.Context, verb string, args []string) (any, error) {
	req := apiRequest{ctx: ctx, verb: verb, args: args, reply: make(chan apiReply, 1)}
	select {
	case c.apiCh <- req:
	case <-c.done:
		return nil, ErrStopped
	}
	select {
	case rep := <-req.reply:
		return rep.result, rep.err
	case <-c.done:
		return nil, ErrStopped
	}
}

// Poll suspends until a pending event batch is available, the context
// expires, or the worker is killed. At most one poll is outstanding; a
// newer poll displaces the previous one, which receives whatever is
// pending at that moment.
func (c *Connection) Poll(ctx context.Context) (PollResult, error) {
	p := &poller{ch: make(chan PollResult, 1)}

	select {
	case c.pollCh <- p:
	case <-c.done:
		return PollResult{Killed: true}, nil
	case <-ctx.Done():
		return PollResult{}, ctx.Err()
	}

	select {
	case res := <-p.ch:
		return res, nil
	case <-ctx.Done():
		// hand the registration back so an undelivered batch is not lost
		select {
		case c.unpollCh <- p:
		case <-c.done:
			return PollResult{Killed: true}, nil
		}
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordPollTimeout()
		}
		return PollResult{}, ctx.Err()
	case <-c.done:
		return PollResult{Killed: true}, nil
	}
}

// Logout stops the worker. The agent FSM and its channels die with it.
// Safe to call more than once.
func (c *Connection) Logout() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// ChannelUpdate implements channel.Notifier: channel activity is folded
// into the event stream feeding the poll queue.
func (c *Connection) ChannelUpdate(channelID string, state channel.State, call channel.Call) {
	c.cfg.Events.Publish(event.New(event.TypeChannelStateUpdate, c.agent.Login, map[string]any{
		"channel":   channelID,
		"call":      call.ID,
		"state":     string(state),
		"client":    call.Client,
		"caller_id": call.CallerID,
	}))
}

// run owns the poll queue. FIFO per inbox; the pending slice holds events
// that arrived while no poller was suspended.
func (c *Connection) run() {
	var (
		pending []event.Event
		cur     *poller
	)

	idle := time.NewTimer(c.cfg.IdleTimeout)
	defer idle.Stop()

	deliver := func(p *poller, res PollResult) {
		p.ch <- res
	}
	flush := func() {
		if cur == nil || len(pending) == 0 {
			return
		}
		deliver(cur, PollResult{Events: pending})
		pending = nil
		cur = nil
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.SetActivePolls(0)
		}
	}

	kill := func(reason string) {
		if cur != nil {
			deliver(cur, PollResult{Killed: true})
			cur = nil
		}
		c.fsm.Stop()
		c.cfg.Events.Evict(c.sub)
		close(c.done)
		logger.Info("connection worker terminated",
			logger.KeyAgent, c.agent.Login,
			"reason", reason)
	}

	for {
		select {
		case e, ok := <-c.sub:
			if !ok {
				kill("event stream closed")
				return
			}
			pending = append(pending, e)
			flush()

		case p := <-c.pollCh:
			if cur != nil {
				// the newer poll wins; the displaced one gets what is
				// pending, possibly nothing
				deliver(cur, PollResult{Events: pending})
				pending = nil
				if c.cfg.Metrics != nil {
					c.cfg.Metrics.RecordPollSuperseded()
				}
			}
			cur = p
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.SetActivePolls(1)
			}
			flush()

		case p := <-c.unpollCh:
			if cur == p {
				cur = nil
				if c.cfg.Metrics != nil {
					c.cfg.Metrics.SetActivePolls(0)
				}
				break
			}
			// already fulfilled: reclaim the batch the caller never read
			select {
			case res := <-p.ch:
				if !res.Killed && len(res.Events) > 0 {
					pending = append(res.Events, pending...)
				}
			default:
			}

		case req := <-c.apiCh:
			result, err := c.fsm.HandleAPI(req.ctx, req.verb, req.args)
			req.reply <- apiReply{result: result, err: err}

		case reply := <-c.dumpCh:
			reply <- c.fsm.Dump()

		case <-c.keepalive:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.cfg.IdleTimeout)

		case <-idle.C:
			kill("idle timeout")
			return

		case <-c.stopCh:
			kill("logout")
			return
		}
	}
}
