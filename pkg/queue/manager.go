package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/cluster"
	"github.com/opencpx/cpx/pkg/metrics"
	"github.com/opencpx/cpx/pkg/store"
)

// DefaultPriority is the priority assigned to calls entering a queue
// without an explicit one.
const DefaultPriority = 10

// DefaultRPCTimeout bounds a follower's wait on the leader.
const DefaultRPCTimeout = 2 * time.Second

// Registration retry schedule. A Register that lands on a node which has
// not yet processed its own election answers ErrNotLeader; the attempts
// below cover the convergence window after a handover.
const (
	registerAttempts   = 12
	registerRetryDelay = 250 * time.Millisecond
)

var (
	// ErrNotLeader is returned by the leader-side registry operations on a
	// follower. Callers should retry against the current leader.
	ErrNotLeader = errors.New("not the queue leader")

	// ErrTimeout is returned when the leader did not answer in time.
	ErrTimeout = errors.New("queue leader did not respond")

	// ErrStopped is returned once the manager shut down.
	ErrStopped = errors.New("queue manager stopped")
)

// Entry is one queue in the cluster-wide registry: which node runs the
// worker and the configuration it was started with.
type Entry struct {
	Name   string `json:"name"`
	Node   string `json:"node"`
	Weight int    `json:"weight"`
	Recipe string `json:"recipe"`
}

// LeaderRPC is the follower's view of the leader's registry. The
// production implementation rides the cluster HTTP endpoints; tests wire
// managers to each other directly.
type LeaderRPC interface {
	Register(ctx context.Context, e Entry) error
	Deregister(ctx context.Context, name, node string) error
	Lookup(ctx context.Context, name string) (Entry, bool, error)
	List(ctx context.Context) ([]Entry, error)
}

// ConfigSource supplies persisted queue configuration. *store.GORMStore
// satisfies it.
type ConfigSource interface {
	GetQueueConfig(ctx context.Context, name string) (*store.QueueModel, error)
	ListQueueConfigs(ctx context.Context) ([]*store.QueueModel, error)
}

// ManagerConfig configures a queue manager.
type ManagerConfig struct {
	// Elector supplies node identity and leadership changes. Required.
	Elector cluster.Elector

	// Store restarts dead workers from persisted configuration. Optional;
	// without it a dead worker's queue is dropped.
	Store ConfigSource

	// Clients resolves a LeaderRPC for a node name. Optional for
	// single-node setups; required for followers to reach the leader.
	Clients func(node string) LeaderRPC

	// RPCTimeout bounds leader calls. Default DefaultRPCTimeout.
	RPCTimeout time.Duration

	// Metrics is optional.
	Metrics metrics.QueueMetrics
}

// Manager owns this node's queue workers and the replicated name
// registry. Every node answers local queries from its own workers; the
// elected leader additionally holds the authoritative cluster-wide view,
// rebuilt from worker republication whenever leadership moves.
type Manager struct {
	cfg ManagerConfig

	mu      sync.Mutex
	local   map[string]*Worker
	view    map[string]Entry
	leading bool
	stopped bool

	done chan struct{}
}

// NewManager starts the manager and its leadership event loop.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = DefaultRPCTimeout
	}
	m := &Manager{
		cfg:   cfg,
		local: make(map[string]*Worker),
		view:  make(map[string]Entry),
		done:  make(chan struct{}),
	}
	if cfg.Elector.IsLeader() {
		m.leading = true
		if cfg.Metrics != nil {
			cfg.Metrics.SetLeader(true)
		}
	}
	go m.run()
	return m
}

// Self returns this node's name.
func (m *Manager) Self() string { return m.cfg.Elector.Self() }

// LoadPersisted starts a worker for every queue in the configuration
// store. Called once at boot.
func (m *Manager) LoadPersisted(ctx context.Context) error {
	if m.cfg.Store == nil {
		return nil
	}
	configs, err := m.cfg.Store.ListQueueConfigs(ctx)
	if err != nil {
		return err
	}
	for _, qc := range configs {
		if _, _, _, err := m.AddQueue(ctx, qc.Name, qc.Recipe, qc.Weight); err != nil {
			logger.Warn("failed to start persisted queue",
				logger.KeyQueue, qc.Name,
				logger.Err(err))
		}
	}
	return nil
}

// AddQueue starts a queue, or reports the existing one. The check runs
// locally first, then against the leader's cluster-wide view; only when
// both miss is a worker started and registered. The worker return is nil
// when the existing queue lives on another node.
func (m *Manager) AddQueue(ctx context.Context, name, recipe string, weight int) (Entry, *Worker, bool, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return Entry{}, nil, false, ErrStopped
	}
	if w, ok := m.local[name]; ok {
		m.mu.Unlock()
		return m.entryFor(w), w, true, nil
	}
	leading := m.leading
	if leading {
		if e, ok := m.view[name]; ok {
			m.mu.Unlock()
			return e, nil, true, nil
		}
	}
	m.mu.Unlock()

	if !leading {
		if rpc := m.leaderRPC(); rpc != nil {
			e, ok, err := m.lookupRemote(ctx, rpc, name)
			if err != nil {
				return Entry{}, nil, false, err
			}
			if ok {
				return e, nil, true, nil
			}
		}
	}

	w := NewWorker(name, recipe, weight, m.cfg.Metrics)
	e := m.entryFor(w)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		w.Stop()
		return Entry{}, nil, false, ErrStopped
	}
	if prev, ok := m.local[name]; ok {
		// lost the race against a concurrent AddQueue
		m.mu.Unlock()
		w.Stop()
		return m.entryFor(prev), prev, true, nil
	}
	m.local[name] = w
	if m.leading {
		m.view[name] = e
	}
	m.mu.Unlock()

	go m.watch(name, w)
	m.publish(ctx, e)

	logger.Info("queue started",
		logger.KeyQueue, name,
		logger.KeyNode, m.Self(),
		logger.KeyWeight, w.Weight())
	return e, w, false, nil
}

// GetQueue resolves a queue name through the leader's authoritative view.
// The worker return is non-nil only when the queue runs on this node.
func (m *Manager) GetQueue(ctx context.Context, name string) (Entry, *Worker, bool, error) {
	m.mu.Lock()
	leading := m.leading
	if leading {
		e, ok := m.view[name]
		w := m.local[name]
		m.mu.Unlock()
		return e, w, ok, nil
	}
	w := m.local[name]
	m.mu.Unlock()

	rpc := m.leaderRPC()
	if rpc == nil {
		if w != nil {
			return m.entryFor(w), w, true, nil
		}
		return Entry{}, nil, false, nil
	}
	e, ok, err := m.lookupRemote(ctx, rpc, name)
	if err != nil {
		return Entry{}, nil, false, err
	}
	return e, w, ok, nil
}

// QueryQueue reports whether a queue exists anywhere in the cluster. The
// local table answers without a network round trip; only a local miss
// consults the leader.
func (m *Manager) QueryQueue(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	_, local := m.local[name]
	leading := m.leading
	_, inView := m.view[name]
	m.mu.Unlock()

	if local {
		return true, nil
	}
	if leading {
		return inView, nil
	}
	rpc := m.leaderRPC()
	if rpc == nil {
		return false, nil
	}
	_, ok, err := m.lookupRemote(ctx, rpc, name)
	return ok, err
}

// Queues returns the cluster-wide registry from the leader.
func (m *Manager) Queues(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	if m.leading {
		out := make([]Entry, 0, len(m.view))
		for _, e := range m.view {
			out = append(out, e)
		}
		m.mu.Unlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return out, nil
	}
	m.mu.Unlock()

	rpc := m.leaderRPC()
	if rpc == nil {
		return m.localEntries(), nil
	}
	cctx, cancel := context.WithTimeout(ctx, m.cfg.RPCTimeout)
	defer cancel()
	out, err := rpc.List(cctx)
	if err != nil {
		return nil, m.mapRPCError(err)
	}
	return out, nil
}

// GetBestBindableQueues ranks this node's bindable queues for the
// dispatcher, best first.
func (m *Manager) GetBestBindableQueues() []RankedQueue {
	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.local))
	for _, w := range m.local {
		workers = append(workers, w)
	}
	m.mu.Unlock()
	return rankBindable(workers, m.cfg.Metrics)
}

// Transfer implements the agent-side queue transfer: the call enters the
// named queue at default priority, starting the queue from persisted
// configuration when no worker runs yet.
func (m *Manager) Transfer(ctx context.Context, queueName string, call channel.Call) error {
	recipe, weight := DefaultRecipe, 1
	if m.cfg.Store != nil {
		if qc, err := m.cfg.Store.GetQueueConfig(ctx, queueName); err == nil {
			recipe, weight = qc.Recipe, qc.Weight
		} else if !errors.Is(err, store.ErrQueueNotFound) {
			return err
		}
	}

	e, w, _, err := m.AddQueue(ctx, queueName, recipe, weight)
	if err != nil {
		return err
	}
	if w == nil {
		// queue lives on another node; enqueue into a local worker under
		// the same name so the call is served here, the registry entry on
		// the leader stays with its original home
		m.mu.Lock()
		w = m.local[queueName]
		if w == nil {
			w = NewWorker(e.Name, e.Recipe, e.Weight, m.cfg.Metrics)
			m.local[queueName] = w
			go m.watch(queueName, w)
		}
		m.mu.Unlock()
	}
	w.Enqueue(call, DefaultPriority)
	return nil
}

// HandleRegister records a queue in the leader's view. Invoked by the
// cluster HTTP endpoint; fails on followers.
func (m *Manager) HandleRegister(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.leading {
		return ErrNotLeader
	}
	m.view[e.Name] = e
	return nil
}

// HandleDeregister removes a queue from the leader's view, but only when
// the requesting node still owns the entry.
func (m *Manager) HandleDeregister(name, node string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.leading {
		return ErrNotLeader
	}
	if e, ok := m.view[name]; ok && e.Node == node {
		delete(m.view, name)
	}
	return nil
}

// HandleLookup answers a registry lookup on the leader.
func (m *Manager) HandleLookup(name string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.leading {
		return Entry{}, false, ErrNotLeader
	}
	e, ok := m.view[name]
	return e, ok, nil
}

// HandleList answers a full registry listing on the leader.
func (m *Manager) HandleList() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.leading {
		return nil, ErrNotLeader
	}
	out := make([]Entry, 0, len(m.view))
	for _, e := range m.view {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close stops all local workers and the event loop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	workers := make([]*Worker, 0, len(m.local))
	for _, w := range m.local {
		workers = append(workers, w)
	}
	m.local = make(map[string]*Worker)
	m.view = make(map[string]Entry)
	m.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	close(m.done)
}

// run reacts to leadership and membership changes.
func (m *Manager) run() {
	events := m.cfg.Elector.Events()
	for {
		select {
		case <-m.done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.clusterEvent(e)
		}
	}
}

func (m *Manager) clusterEvent(e cluster.Event) {
	switch e.Type {
	case cluster.EventElected:
		m.becomeLeader()
	case cluster.EventSurrendered:
		m.surrender()
	case cluster.EventLeaderChanged:
		// entries held by the old leader are gone with it; resubmit ours
		m.republish()
	case cluster.EventNodeDown:
		m.nodeDown(e.Node)
	}
}

// becomeLeader seeds the authoritative view with this node's workers.
// Other nodes republish theirs on observing the handover.
func (m *Manager) becomeLeader() {
	m.mu.Lock()
	m.leading = true
	m.view = make(map[string]Entry)
	for _, w := range m.local {
		m.view[w.Name()] = m.entryFor(w)
	}
	n := len(m.view)
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SetLeader(true)
	}
	logger.Info("assumed queue leadership",
		logger.KeyNode, m.Self(),
		logger.KeyCount, n)
}

// surrender hands the view over: the local copy is discarded and this
// node's entries are republished to the new leader.
func (m *Manager) surrender() {
	m.mu.Lock()
	m.leading = false
	m.view = make(map[string]Entry)
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SetLeader(false)
	}
	logger.Info("surrendered queue leadership",
		logger.KeyNode, m.Self(),
		logger.KeyLeader, m.cfg.Elector.Leader())
	m.republish()
}

// republish re-registers every local worker with the current leader.
func (m *Manager) republish() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RPCTimeout)
	defer cancel()
	for _, e := range m.localEntries() {
		m.publish(ctx, e)
	}
}

// nodeDown drops the dead node's entries from the leader view, then
// restarts persisted queues the registry no longer carries. A freshly
// elected leader seeds its view from local workers only, so a queue the
// dead node owned is absent rather than dropped; the reconciliation pass
// catches both shapes.
func (m *Manager) nodeDown(node string) {
	m.mu.Lock()
	if !m.leading {
		m.mu.Unlock()
		return
	}
	dropped := 0
	for name, e := range m.view {
		if e.Node == node {
			delete(m.view, name)
			dropped++
		}
	}
	m.mu.Unlock()

	if dropped > 0 {
		logger.Info("dropped queues of dead node",
			logger.KeyNode, node,
			logger.KeyCount, dropped)
	}
	m.recoverPersisted()
}

// recoverPersisted respawns every persisted queue missing from the
// leader's view. A surviving owner republishing concurrently wins the
// registry entry through HandleRegister; the local respawn then only
// shadows it until the worker drains.
func (m *Manager) recoverPersisted() {
	if m.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RPCTimeout)
	defer cancel()

	configs, err := m.cfg.Store.ListQueueConfigs(ctx)
	if err != nil {
		logger.Error("queue recovery blocked by store", logger.Err(err))
		return
	}
	for _, qc := range configs {
		m.mu.Lock()
		_, known := m.view[qc.Name]
		m.mu.Unlock()
		if known {
			continue
		}
		logger.Warn("restarting queue lost with its node",
			logger.KeyQueue, qc.Name,
			logger.KeyNode, m.Self())
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordWorkerRestart(qc.Name)
		}
		if _, _, _, err := m.AddQueue(ctx, qc.Name, qc.Recipe, qc.Weight); err != nil {
			logger.Error("queue recovery failed",
				logger.KeyQueue, qc.Name,
				logger.Err(err))
		}
	}
}

// watch restarts a worker that died abnormally from the persisted queue
// configuration, or drops the queue when the configuration is gone.
func (m *Manager) watch(name string, w *Worker) {
	select {
	case <-m.done:
		return
	case <-w.Done():
	}

	m.mu.Lock()
	if m.stopped || m.local[name] != w {
		m.mu.Unlock()
		return
	}
	delete(m.local, name)
	if m.leading {
		delete(m.view, name)
	}
	m.mu.Unlock()

	reason := w.Err()
	if reason == nil {
		m.deregister(name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RPCTimeout)
	defer cancel()

	if m.cfg.Store != nil {
		qc, err := m.cfg.Store.GetQueueConfig(ctx, name)
		if err == nil {
			logger.Warn("queue worker died, restarting",
				logger.KeyQueue, name,
				logger.Err(reason))
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.RecordWorkerRestart(name)
			}
			if _, _, _, err := m.AddQueue(ctx, name, qc.Recipe, qc.Weight); err != nil {
				logger.Error("queue restart failed",
					logger.KeyQueue, name,
					logger.Err(err))
			}
			return
		}
		if !errors.Is(err, store.ErrQueueNotFound) {
			logger.Error("queue restart blocked by store",
				logger.KeyQueue, name,
				logger.Err(err))
		}
	}

	logger.Warn("queue worker died without persisted config, dropping",
		logger.KeyQueue, name,
		logger.Err(reason))
	m.deregister(name)
}

func (m *Manager) entryFor(w *Worker) Entry {
	return Entry{Name: w.Name(), Node: m.Self(), Weight: w.Weight(), Recipe: w.Recipe()}
}

func (m *Manager) localEntries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.local))
	for _, w := range m.local {
		out = append(out, m.entryFor(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// publish registers an entry with the leader. On the leader this is a
// view write; on followers it is an RPC. A failed attempt is retried in
// the background across the convergence window, re-resolving the leader
// each time, so an entry survives a Register that raced the new leader's
// own election.
func (m *Manager) publish(ctx context.Context, e Entry) {
	if m.publishOnce(ctx, e) {
		return
	}
	go func() {
		for attempt := 1; attempt < registerAttempts; attempt++ {
			select {
			case <-m.done:
				return
			case <-time.After(registerRetryDelay):
			}
			if m.publishOnce(context.Background(), e) {
				return
			}
		}
		logger.Warn("queue registration with leader failed",
			logger.KeyQueue, e.Name,
			logger.KeyLeader, m.cfg.Elector.Leader())
	}()
}

// publishOnce makes one registration attempt. True means the entry is
// placed or no longer needs placing; false asks for a retry.
func (m *Manager) publishOnce(ctx context.Context, e Entry) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return true
	}
	if m.leading {
		m.view[e.Name] = e
		m.mu.Unlock()
		return true
	}
	if _, ok := m.local[e.Name]; !ok {
		// worker went away while we were waiting to register it
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	if m.cfg.Clients == nil {
		return true
	}
	rpc := m.leaderRPC()
	if rpc == nil {
		// no resolved leader yet
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, m.cfg.RPCTimeout)
	defer cancel()
	if err := rpc.Register(cctx, e); err != nil {
		logger.Debug("queue registration attempt failed",
			logger.KeyQueue, e.Name,
			logger.KeyLeader, m.cfg.Elector.Leader(),
			logger.Err(err))
		return false
	}
	return true
}

func (m *Manager) deregister(name string) {
	m.mu.Lock()
	leading := m.leading
	m.mu.Unlock()
	if leading {
		return
	}
	rpc := m.leaderRPC()
	if rpc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RPCTimeout)
	defer cancel()
	if err := rpc.Deregister(ctx, name, m.Self()); err != nil {
		logger.Warn("queue deregistration with leader failed",
			logger.KeyQueue, name,
			logger.Err(err))
	}
}

func (m *Manager) leaderRPC() LeaderRPC {
	if m.cfg.Clients == nil {
		return nil
	}
	leader := m.cfg.Elector.Leader()
	if leader == "" || leader == m.Self() {
		return nil
	}
	return m.cfg.Clients(leader)
}

func (m *Manager) lookupRemote(ctx context.Context, rpc LeaderRPC, name string) (Entry, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.RPCTimeout)
	defer cancel()
	e, ok, err := rpc.Lookup(cctx, name)
	if err != nil {
		return Entry{}, false, m.mapRPCError(err)
	}
	return e, ok, nil
}

func (m *Manager) mapRPCError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
