package agent

import (
	"sync"

	"github.com/opencpx/cpx/pkg/event"
)

// Registry is the node-local table of logged-in agents, keyed by login.
// It backs get_avail_agents and agent-to-agent transfers.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*FSM
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*FSM)}
}

func (r *Registry) register(f *FSM) {
	r.mu.Lock()
	r.agents[f.agent.Login] = f
	r.mu.Unlock()
}

func (r *Registry) unregister(login string) {
	r.mu.Lock()
	delete(r.agents, login)
	r.mu.Unlock()
}

// Get returns the FSM of a logged-in agent.
func (r *Registry) Get(login string) (*FSM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.agents[login]
	return f, ok
}

// Len returns the number of logged-in agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Available lists the snapshots of agents currently able to take a call.
func (r *Registry) Available() []Snapshot {
	r.mu.RLock()
	fsms := make([]*FSM, 0, len(r.agents))
	for _, f := range r.agents {
		fsms = append(fsms, f)
	}
	r.mu.RUnlock()

	out := []Snapshot{}
	for _, f := range fsms {
		if f.Available() {
			out = append(out, f.Dump())
		}
	}
	return out
}

func eventMediaPush(login string, args []string) event.Event {
	data := map[string]any{}
	if len(args) > 0 {
		data["payload"] = args
	}
	return event.New(event.TypeMediaPush, login, data)
}

func eventBlab(login, message string) event.Event {
	return event.New(event.TypeBlab, login, map[string]any{"message": message})
}
