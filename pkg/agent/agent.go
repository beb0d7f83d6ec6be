// Package agent implements the per-agent runtime: the availability state
// machine that owns an agent's channels, and the connection worker that
// fronts one logged-in browser session. Both are single-goroutine actors;
// the dispatcher talks to them by message.
package agent

import (
	"time"

	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/store"
)

// Agent is the runtime agent record, built from the persisted account at
// login. It carries no password material.
type Agent struct {
	ID            string           `json:"id"`
	Login         string           `json:"login"`
	Profile       string           `json:"profile"`
	Skills        []string         `json:"skills"`
	SecurityLevel string           `json:"security_level"`
	RingPath      channel.RingPath `json:"ring_path"`
}

// FromModel builds the runtime agent from its persisted account.
// useOutbandRing overrides the stored default when the login options say
// so.
func FromModel(m *store.AgentModel, useOutbandRing bool) Agent {
	ringPath := channel.RingInband
	if useOutbandRing || m.UseOutbandRing {
		ringPath = channel.RingOutband
	}
	return Agent{
		ID:            m.ID,
		Login:         m.Login,
		Profile:       m.Profile,
		Skills:        m.SkillNames(),
		SecurityLevel: m.SecurityLevel,
		RingPath:      ringPath,
	}
}

// IsSupervisor reports whether the agent may use the supervisor API.
func (a Agent) IsSupervisor() bool {
	return a.SecurityLevel == string(store.SecuritySupervisor) ||
		a.SecurityLevel == string(store.SecurityAdmin)
}

// Snapshot is the immutable agent view returned by dump_agent and
// check_cookie.
type Snapshot struct {
	Login     string   `json:"login"`
	Profile   string   `json:"profile"`
	Skills    []string `json:"skills,omitempty"`
	State     string   `json:"state"`
	StateData string   `json:"statedata,omitempty"`
	StateTime int64    `json:"statetime"`
	Timestamp int64    `json:"timestamp"`
	MediaLoad int      `json:"mediaload,omitempty"`
}

func snapshotTimestamp() int64 {
	return time.Now().Unix()
}
