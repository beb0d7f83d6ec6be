package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/cluster"
	"github.com/opencpx/cpx/pkg/store"
)

func call(id string) channel.Call {
	return channel.Call{ID: id, Type: channel.MediaVoice, Client: "client-1"}
}

func TestWorkerOrdersByPriorityThenAge(t *testing.T) {
	t.Parallel()

	w := NewWorker("q1", "", 1, nil)
	base := time.Unix(1000, 0)
	w.EnqueueAt(call("late-low"), 10, base.Add(2*time.Second))
	w.EnqueueAt(call("early-low"), 10, base)
	w.EnqueueAt(call("urgent"), 0, base.Add(5*time.Second))

	calls := w.Calls()
	require.Equal(t, []string{"urgent", "early-low", "late-low"},
		[]string{calls[0].ID, calls[1].ID, calls[2].ID})

	head, ok := w.Ask()
	require.True(t, ok)
	require.Equal(t, "urgent", head.ID)

	require.True(t, w.Remove("urgent"))
	require.False(t, w.Remove("urgent"))
	head, ok = w.Ask()
	require.True(t, ok)
	require.Equal(t, "early-low", head.ID)
}

func TestWorkerStoppedIsNotBindable(t *testing.T) {
	t.Parallel()

	w := NewWorker("q1", "", 1, nil)
	w.Enqueue(call("c1"), DefaultPriority)
	w.Stop()

	_, ok := w.Ask()
	require.False(t, ok)
	require.NoError(t, w.Err())
}

func TestWorkerWeightClamped(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, NewWorker("q", "", 0, nil).Weight())
	require.Equal(t, 1, NewWorker("q", "", -3, nil).Weight())
	require.Equal(t, DefaultRecipe, NewWorker("q", "", 1, nil).Recipe())
}

// A heavier queue outranks an older call of equal priority.
func TestRankingPressureBeatsAge(t *testing.T) {
	t.Parallel()

	q1 := NewWorker("q1", "", 1, nil)
	q1.EnqueueAt(call("c1"), 10, time.Unix(100, 0))
	q2 := NewWorker("q2", "", 10, nil)
	q2.EnqueueAt(call("c2"), 10, time.Unix(200, 0))

	ranked := rankBindable([]*Worker{q1, q2}, nil)
	require.Len(t, ranked, 2)
	require.Equal(t, "q2", ranked[0].Name)
	require.Equal(t, "q1", ranked[1].Name)
}

// With equal pressure a more urgent call wins even against an older one.
func TestRankingPriorityBeatsAgeAtEqualPressure(t *testing.T) {
	t.Parallel()

	q1 := NewWorker("q1", "", 1, nil)
	q1.EnqueueAt(call("c1"), 10, time.Unix(100, 0))
	q3 := NewWorker("q3", "", 1, nil)
	q3.EnqueueAt(call("c3"), 0, time.Unix(200, 0))

	ranked := rankBindable([]*Worker{q1, q3}, nil)
	require.Len(t, ranked, 2)
	require.Equal(t, "q3", ranked[0].Name)
	require.Equal(t, "q1", ranked[1].Name)
}

func TestRankingDropsEmptyAndFoldsRank(t *testing.T) {
	t.Parallel()

	empty := NewWorker("empty", "", 5, nil)
	q1 := NewWorker("q1", "", 2, nil)
	q1.EnqueueAt(call("a"), 10, time.Unix(100, 0))
	q1.EnqueueAt(call("b"), 10, time.Unix(101, 0))
	q2 := NewWorker("q2", "", 1, nil)
	q2.EnqueueAt(call("c"), 10, time.Unix(50, 0))

	ranked := rankBindable([]*Worker{empty, q1, q2}, nil)
	require.Len(t, ranked, 2)

	// q1: weight 2 * 2 waiting = 4, first of two gets +1
	require.Equal(t, "q1", ranked[0].Name)
	require.Equal(t, 5, ranked[0].Weight)
	// q2: 1 * 1 = 1, last gets +0
	require.Equal(t, "q2", ranked[1].Name)
	require.Equal(t, 1, ranked[1].Weight)
}

// The outcome must not depend on the order queues are handed in.
func TestRankingStableUnderInputPermutation(t *testing.T) {
	t.Parallel()

	build := func() []*Worker {
		q1 := NewWorker("q1", "", 1, nil)
		q1.EnqueueAt(call("c1"), 10, time.Unix(100, 0))
		q2 := NewWorker("q2", "", 10, nil)
		q2.EnqueueAt(call("c2"), 10, time.Unix(200, 0))
		q3 := NewWorker("q3", "", 1, nil)
		q3.EnqueueAt(call("c3"), 0, time.Unix(200, 0))
		return []*Worker{q1, q2, q3}
	}

	perms := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}, {0, 2, 1}, {1, 2, 0}}
	var want []string
	for _, p := range perms {
		ws := build()
		in := []*Worker{ws[p[0]], ws[p[1]], ws[p[2]]}
		ranked := rankBindable(in, nil)
		names := make([]string, len(ranked))
		for i, r := range ranked {
			names[i] = r.Name
		}
		if want == nil {
			want = names
			continue
		}
		require.Equal(t, want, names, "permutation %v", p)
	}
}

// Fully tied queues still rank deterministically whatever order the
// worker map yields them in.
func TestRankingDeterministicOnTies(t *testing.T) {
	t.Parallel()

	build := func() []*Worker {
		ws := make([]*Worker, 0, 3)
		for _, name := range []string{"qa", "qb", "qc"} {
			w := NewWorker(name, "", 1, nil)
			w.EnqueueAt(call("c-"+name), 10, time.Unix(100, 0))
			ws = append(ws, w)
		}
		return ws
	}

	for _, p := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}} {
		ws := build()
		ranked := rankBindable([]*Worker{ws[p[0]], ws[p[1]], ws[p[2]]}, nil)
		require.Len(t, ranked, 3)
		for i, want := range []string{"qa", "qb", "qc"} {
			require.Equal(t, want, ranked[i].Name, "permutation %v", p)
		}
	}
}

type fakeConfigSource struct {
	queues map[string]*store.QueueModel
}

func (f *fakeConfigSource) GetQueueConfig(_ context.Context, name string) (*store.QueueModel, error) {
	if q, ok := f.queues[name]; ok {
		return q, nil
	}
	return nil, store.ErrQueueNotFound
}

func (f *fakeConfigSource) ListQueueConfigs(context.Context) ([]*store.QueueModel, error) {
	out := make([]*store.QueueModel, 0, len(f.queues))
	for _, q := range f.queues {
		out = append(out, q)
	}
	return out, nil
}

// managerRPC wires a follower straight onto another manager's leader
// handlers, standing in for the HTTP transport.
type managerRPC struct{ m *Manager }

func (r managerRPC) Register(_ context.Context, e Entry) error { return r.m.HandleRegister(e) }
func (r managerRPC) Deregister(_ context.Context, name, node string) error {
	return r.m.HandleDeregister(name, node)
}
func (r managerRPC) Lookup(_ context.Context, name string) (Entry, bool, error) {
	return r.m.HandleLookup(name)
}
func (r managerRPC) List(context.Context) ([]Entry, error) { return r.m.HandleList() }

// peerSet is a lock-guarded node registry: manager goroutines resolve
// peers while the test is still wiring them up.
type peerSet struct {
	mu sync.Mutex
	m  map[string]*Manager
}

func newPeerSet() *peerSet { return &peerSet{m: make(map[string]*Manager)} }

func (p *peerSet) add(name string, m *Manager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[name] = m
}

func (p *peerSet) clients(node string) LeaderRPC {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.m[node]; ok {
		return managerRPC{m}
	}
	return nil
}

func TestAddQueueIdempotentLocally(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{Elector: cluster.NewFakeElector("node-a")})
	defer m.Close()

	ctx := context.Background()
	e, w, existed, err := m.AddQueue(ctx, "q1", "night", 3)
	require.NoError(t, err)
	require.False(t, existed)
	require.NotNil(t, w)
	require.Equal(t, Entry{Name: "q1", Node: "node-a", Weight: 3, Recipe: "night"}, e)

	e2, w2, existed, err := m.AddQueue(ctx, "q1", "other", 9)
	require.NoError(t, err)
	require.True(t, existed)
	require.Same(t, w, w2)
	require.Equal(t, e, e2)
}

func TestFollowerSeesLeaderRegistry(t *testing.T) {
	t.Parallel()

	peers := newPeerSet()
	fa := cluster.NewFakeElector("node-a")
	ma := NewManager(ManagerConfig{Elector: fa, Clients: peers.clients})
	defer ma.Close()
	peers.add("node-a", ma)

	fb := cluster.NewFakeElector("node-b")
	fb.SetLeader("node-a")
	mb := NewManager(ManagerConfig{Elector: fb, Clients: peers.clients})
	defer mb.Close()
	peers.add("node-b", mb)

	ctx := context.Background()
	_, _, _, err := ma.AddQueue(ctx, "q1", "", 1)
	require.NoError(t, err)

	ok, err := mb.QueryQueue(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)

	// adding the same name on the follower reports the existing queue
	// without a local worker
	e, w, existed, err := mb.AddQueue(ctx, "q1", "", 1)
	require.NoError(t, err)
	require.True(t, existed)
	require.Nil(t, w)
	require.Equal(t, "node-a", e.Node)

	// a follower-owned queue registers with the leader
	_, _, _, err = mb.AddQueue(ctx, "q2", "", 2)
	require.NoError(t, err)
	entries, err := ma.Queues(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "node-a", entries[0].Node)
	require.Equal(t, "node-b", entries[1].Node)
}

// Killing the leader: the survivor self-elects, its registry stays
// answerable, and re-adding an existing queue still reports it.
func TestLeaderFailover(t *testing.T) {
	t.Parallel()

	peers := newPeerSet()
	fa := cluster.NewFakeElector("node-a")
	ma := NewManager(ManagerConfig{Elector: fa, Clients: peers.clients})
	peers.add("node-a", ma)

	fb := cluster.NewFakeElector("node-b")
	fb.SetLeader("node-a")
	mb := NewManager(ManagerConfig{Elector: fb, Clients: peers.clients})
	defer mb.Close()
	peers.add("node-b", mb)

	ctx := context.Background()
	_, _, _, err := mb.AddQueue(ctx, "q1", "", 1)
	require.NoError(t, err)

	// node-a dies
	ma.Close()
	fb.SetLeader("node-b")
	fb.NodeDown("node-a")

	require.Eventually(t, func() bool {
		ok, err := mb.QueryQueue(ctx, "q1")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	e, w, existed, err := mb.AddQueue(ctx, "q1", "", 1)
	require.NoError(t, err)
	require.True(t, existed)
	require.NotNil(t, w)
	require.Equal(t, "node-b", e.Node)
}

func TestLeaderDropsDeadNodesQueues(t *testing.T) {
	t.Parallel()

	fa := cluster.NewFakeElector("node-a")
	ma := NewManager(ManagerConfig{Elector: fa, Clients: newPeerSet().clients})
	defer ma.Close()

	require.NoError(t, ma.HandleRegister(Entry{Name: "q-remote", Node: "node-b", Weight: 1}))
	ok, err := ma.QueryQueue(context.Background(), "q-remote")
	require.NoError(t, err)
	require.True(t, ok)

	fa.NodeDown("node-b")
	require.Eventually(t, func() bool {
		ok, err := ma.QueryQueue(context.Background(), "q-remote")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSurrenderRepublishesLocalQueues(t *testing.T) {
	t.Parallel()

	peers := newPeerSet()
	fa := cluster.NewFakeElector("node-a")
	ma := NewManager(ManagerConfig{Elector: fa, Clients: peers.clients})
	defer ma.Close()
	peers.add("node-a", ma)

	fb := cluster.NewFakeElector("node-b")
	fb.SetLeader("node-a")
	mb := NewManager(ManagerConfig{Elector: fb, Clients: peers.clients})
	defer mb.Close()
	peers.add("node-b", mb)

	ctx := context.Background()
	_, _, _, err := ma.AddQueue(ctx, "q1", "", 1)
	require.NoError(t, err)

	// leadership moves to node-b; node-a must republish q1 there
	fb.SetLeader("node-b")
	fa.SetLeader("node-b")

	require.Eventually(t, func() bool {
		e, ok, err := mb.HandleLookup("q1")
		return err == nil && ok && e.Node == "node-a"
	}, 2*time.Second, 10*time.Millisecond)
}

// Killing the leader that owns a queue: the new leader restores it from
// persisted configuration instead of losing it from the replicated view.
func TestFailoverRestartsDeadLeadersQueues(t *testing.T) {
	t.Parallel()

	src := &fakeConfigSource{queues: map[string]*store.QueueModel{
		"q1": {Name: "q1", Weight: 3, Recipe: "night"},
	}}

	peers := newPeerSet()
	fa := cluster.NewFakeElector("node-a")
	ma := NewManager(ManagerConfig{Elector: fa, Store: src, Clients: peers.clients})
	peers.add("node-a", ma)

	fb := cluster.NewFakeElector("node-b")
	fb.SetLeader("node-a")
	mb := NewManager(ManagerConfig{Elector: fb, Store: src, Clients: peers.clients})
	defer mb.Close()
	peers.add("node-b", mb)

	ctx := context.Background()
	_, _, _, err := ma.AddQueue(ctx, "q1", "night", 3)
	require.NoError(t, err)

	// the owning leader dies
	ma.Close()
	fb.SetLeader("node-b")
	fb.NodeDown("node-a")

	require.Eventually(t, func() bool {
		ok, err := mb.QueryQueue(ctx, "q1")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	e, w, existed, err := mb.AddQueue(ctx, "q1", "night", 3)
	require.NoError(t, err)
	require.True(t, existed)
	require.NotNil(t, w)
	require.Equal(t, "node-b", e.Node)
	require.Equal(t, 3, w.Weight())
}

// notYetLeaderRPC answers ErrNotLeader for the first rejects Register
// calls, the way a node does before it has processed its own election.
type notYetLeaderRPC struct {
	managerRPC
	mu       sync.Mutex
	rejects  int
	attempts int
}

func (r *notYetLeaderRPC) Register(ctx context.Context, e Entry) error {
	r.mu.Lock()
	r.attempts++
	reject := r.attempts <= r.rejects
	r.mu.Unlock()
	if reject {
		return ErrNotLeader
	}
	return r.managerRPC.Register(ctx, e)
}

func (r *notYetLeaderRPC) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func TestPublishRetriesUntilLeaderConverges(t *testing.T) {
	t.Parallel()

	fb := cluster.NewFakeElector("node-b")
	mb := NewManager(ManagerConfig{Elector: fb})
	defer mb.Close()

	late := &notYetLeaderRPC{managerRPC: managerRPC{mb}, rejects: 2}
	fa := cluster.NewFakeElector("node-a")
	ma := NewManager(ManagerConfig{Elector: fa, Clients: func(string) LeaderRPC { return late }})
	defer ma.Close()

	ctx := context.Background()
	_, _, _, err := ma.AddQueue(ctx, "q1", "", 1)
	require.NoError(t, err)

	// handover: node-a republishes against a leader that is not ready yet
	fa.SetLeader("node-b")

	require.Eventually(t, func() bool {
		e, ok, err := mb.HandleLookup("q1")
		return err == nil && ok && e.Node == "node-a"
	}, 5*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, late.count(), 3)
}

func TestDeadWorkerRestartsFromStore(t *testing.T) {
	t.Parallel()

	src := &fakeConfigSource{queues: map[string]*store.QueueModel{
		"q1": {Name: "q1", Weight: 4, Recipe: "night"},
	}}
	m := NewManager(ManagerConfig{Elector: cluster.NewFakeElector("node-a"), Store: src})
	defer m.Close()

	ctx := context.Background()
	_, w, _, err := m.AddQueue(ctx, "q1", "night", 4)
	require.NoError(t, err)

	w.Kill(errors.New("media backend lost"))

	require.Eventually(t, func() bool {
		_, w2, ok, err := m.GetQueue(ctx, "q1")
		return err == nil && ok && w2 != nil && w2 != w && w2.Weight() == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeadWorkerWithoutConfigIsDropped(t *testing.T) {
	t.Parallel()

	src := &fakeConfigSource{queues: map[string]*store.QueueModel{}}
	m := NewManager(ManagerConfig{Elector: cluster.NewFakeElector("node-a"), Store: src})
	defer m.Close()

	ctx := context.Background()
	_, w, _, err := m.AddQueue(ctx, "ephemeral", "", 1)
	require.NoError(t, err)

	w.Kill(errors.New("boom"))

	require.Eventually(t, func() bool {
		ok, err := m.QueryQueue(ctx, "ephemeral")
		return err == nil && !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransferStartsQueueFromConfig(t *testing.T) {
	t.Parallel()

	src := &fakeConfigSource{queues: map[string]*store.QueueModel{
		"support": {Name: "support", Weight: 7, Recipe: "escalate"},
	}}
	m := NewManager(ManagerConfig{Elector: cluster.NewFakeElector("node-a"), Store: src})
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Transfer(ctx, "support", call("c1")))

	_, w, ok, err := m.GetQueue(ctx, "support")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, w)
	require.Equal(t, 7, w.Weight())
	require.Equal(t, 1, w.Count())

	head, bindable := w.Ask()
	require.True(t, bindable)
	require.Equal(t, "c1", head.ID)
	require.Equal(t, DefaultPriority, head.Priority)
}

func TestLoadPersistedStartsAllQueues(t *testing.T) {
	t.Parallel()

	src := &fakeConfigSource{queues: map[string]*store.QueueModel{
		"q1": {Name: "q1", Weight: 1},
		"q2": {Name: "q2", Weight: 2},
	}}
	m := NewManager(ManagerConfig{Elector: cluster.NewFakeElector("node-a"), Store: src})
	defer m.Close()

	require.NoError(t, m.LoadPersisted(context.Background()))
	entries, err := m.Queues(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
