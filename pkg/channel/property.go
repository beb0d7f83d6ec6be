package channel

import "sync"

// Property is the registered, queryable descriptor of a live channel.
// Supervisor views and the dispatcher read the registry to see who is on
// what; the owning channel is the only writer of its entry.
type Property struct {
	ChannelID string    `json:"channel_id"`
	Login     string    `json:"login"`
	Profile   string    `json:"profile"`
	Type      MediaType `json:"type"`
	Client    string    `json:"client"`
	CallerID  string    `json:"caller_id"`
	State     State     `json:"state"`
}

// Registry is the node-local channel property table.
type Registry struct {
	mu    sync.RWMutex
	props map[string]Property
}

// NewRegistry creates an empty property registry.
func NewRegistry() *Registry {
	return &Registry{props: make(map[string]Property)}
}

// Set installs or replaces the property for a channel.
func (r *Registry) Set(p Property) {
	r.mu.Lock()
	r.props[p.ChannelID] = p
	r.mu.Unlock()
}

// Remove drops a channel's property. Safe to call twice.
func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	delete(r.props, channelID)
	r.mu.Unlock()
}

// Get returns the property for a channel id.
func (r *Registry) Get(channelID string) (Property, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.props[channelID]
	return p, ok
}

// List returns a copy of every registered property.
func (r *Registry) List() []Property {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Property, 0, len(r.props))
	for _, p := range r.props {
		out = append(out, p)
	}
	return out
}

// ListAgent returns the properties of one agent's channels.
func (r *Registry) ListAgent(login string) []Property {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Property
	for _, p := range r.props {
		if p.Login == login {
			out = append(out, p)
		}
	}
	return out
}
