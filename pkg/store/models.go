package store

import (
	"fmt"
	"time"
)

// SecurityLevel represents the privilege level of an agent account.
type SecurityLevel string

const (
	// SecurityAgent is a regular agent handling interactions.
	SecurityAgent SecurityLevel = "agent"
	// SecuritySupervisor can observe and direct other agents.
	SecuritySupervisor SecurityLevel = "supervisor"
	// SecurityAdmin has full administrative access.
	SecurityAdmin SecurityLevel = "admin"
)

// IsValid checks if the level is a known SecurityLevel.
func (l SecurityLevel) IsValid() bool {
	return l == SecurityAgent || l == SecuritySupervisor || l == SecurityAdmin
}

// AgentModel is the persisted agent account used by the login handshake.
//
// The runtime agent (pkg/agent) is built from this record at successful
// authentication and carries no password material.
type AgentModel struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Login         string     `gorm:"uniqueIndex;not null;size:255" json:"login"`
	PasswordHash  string     `gorm:"not null" json:"-"`
	Profile       string     `gorm:"default:Default;size:255" json:"profile"`
	SecurityLevel string     `gorm:"default:agent;size:50" json:"security_level"`
	UseOutbandRing bool      `gorm:"default:false" json:"use_outband_ring"`
	FirstName     string     `gorm:"size:255" json:"first_name,omitempty"`
	LastName      string     `gorm:"size:255" json:"last_name,omitempty"`
	Enabled       bool       `gorm:"default:true" json:"enabled"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`

	Skills []SkillModel `gorm:"many2many:agent_skills;" json:"skills,omitempty"`
}

// TableName returns the table name for AgentModel.
func (AgentModel) TableName() string {
	return "agents"
}

// SkillNames returns the atom names of the agent's skills.
func (a *AgentModel) SkillNames() []string {
	names := make([]string, len(a.Skills))
	for i, s := range a.Skills {
		names[i] = s.Atom
	}
	return names
}

// Validate checks if the agent record is consistent.
func (a *AgentModel) Validate() error {
	if a.Login == "" {
		return fmt.Errorf("login is required")
	}
	if a.SecurityLevel != "" && !SecurityLevel(a.SecurityLevel).IsValid() {
		return fmt.Errorf("invalid security level %q", a.SecurityLevel)
	}
	return nil
}

// SkillModel is a routable skill atom, optionally grouped for display.
type SkillModel struct {
	Atom        string `gorm:"primaryKey;size:255" json:"atom"`
	Name        string `gorm:"size:255" json:"name"`
	Description string `gorm:"size:1024" json:"description,omitempty"`
	Group       string `gorm:"default:Misc;size:255" json:"group"`
}

// TableName returns the table name for SkillModel.
func (SkillModel) TableName() string {
	return "skills"
}

// QueueModel is the persisted configuration of a call queue. The queue
// manager restarts dead workers from this record.
type QueueModel struct {
	Name      string    `gorm:"primaryKey;size:255" json:"name"`
	Weight    int       `gorm:"default:1" json:"weight"`
	Recipe    string    `gorm:"default:default;size:255" json:"recipe"`
	Group     string    `gorm:"default:Default;size:255" json:"group"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for QueueModel.
func (QueueModel) TableName() string {
	return "queues"
}

// ClientModel is a client (brand) on whose behalf calls arrive.
//
// AutoendWrapup is the per-client wrapup timer in seconds; zero disables
// automatic wrapup termination.
type ClientModel struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	Label         string `gorm:"not null;size:255" json:"label"`
	AutoendWrapup int    `gorm:"default:0" json:"autoend_wrapup"`
}

// TableName returns the table name for ClientModel.
func (ClientModel) TableName() string {
	return "clients"
}

// ReleaseOptionModel is a reason an agent may select when going released.
// Bias steers reporting: -1 negative, 0 neutral, 1 positive.
type ReleaseOptionModel struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Label string `gorm:"uniqueIndex;not null;size:255" json:"label"`
	Bias  int    `gorm:"default:0" json:"bias"`
}

// TableName returns the table name for ReleaseOptionModel.
func (ReleaseOptionModel) TableName() string {
	return "release_options"
}

// Validate checks the bias range.
func (r *ReleaseOptionModel) Validate() error {
	if r.Bias < -1 || r.Bias > 1 {
		return fmt.Errorf("bias must be -1, 0 or 1, got %d", r.Bias)
	}
	return nil
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&AgentModel{},
		&SkillModel{},
		&QueueModel{},
		&ClientModel{},
		&ReleaseOptionModel{},
	}
}
