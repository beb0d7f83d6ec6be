package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/opencpx/cpx/pkg/identity"
)

// ============================================
// AGENT OPERATIONS
// ============================================

func (s *GORMStore) GetAgent(ctx context.Context, login string) (*AgentModel, error) {
	return getByField[AgentModel](s.db, ctx, "login", login, ErrAgentNotFound, "Skills")
}

func (s *GORMStore) GetAgentByID(ctx context.Context, id string) (*AgentModel, error) {
	return getByField[AgentModel](s.db, ctx, "id", id, ErrAgentNotFound, "Skills")
}

func (s *GORMStore) ListAgents(ctx context.Context) ([]*AgentModel, error) {
	return listAll[AgentModel](s.db, ctx, "Skills")
}

func (s *GORMStore) CreateAgent(ctx context.Context, agent *AgentModel) (string, error) {
	if err := agent.Validate(); err != nil {
		return "", err
	}
	agent.CreatedAt = time.Now()
	return createWithID(s.db, ctx, agent, func(a *AgentModel, id string) { a.ID = id }, agent.ID, ErrDuplicateAgent)
}

func (s *GORMStore) UpdateAgent(ctx context.Context, agent *AgentModel) error {
	var existing AgentModel
	if err := s.db.WithContext(ctx).Where("id = ?", agent.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, ErrAgentNotFound)
	}

	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Login", "Profile", "SecurityLevel", "UseOutbandRing", "FirstName", "LastName", "Enabled").
		Updates(agent).Error
}

func (s *GORMStore) DeleteAgent(ctx context.Context, login string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agent AgentModel
		if err := tx.Where("login = ?", login).First(&agent).Error; err != nil {
			return convertNotFoundError(err, ErrAgentNotFound)
		}

		// GORM handles the agent_skills join table
		if err := tx.Model(&agent).Association("Skills").Clear(); err != nil {
			return err
		}

		return tx.Delete(&agent).Error
	})
}

func (s *GORMStore) UpdatePassword(ctx context.Context, login, passwordHash string) error {
	result := s.db.WithContext(ctx).
		Model(&AgentModel{}).
		Where("login = ?", login).
		Update("password_hash", passwordHash)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (s *GORMStore) UpdateLastLogin(ctx context.Context, login string, timestamp time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&AgentModel{}).
		Where("login = ?", login).
		Update("last_login", timestamp)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// Authenticate validates agent credentials, returning the agent record on
// success. Unknown logins and wrong passwords are indistinguishable to the
// caller; both surface ErrInvalidCredentials.
func (s *GORMStore) Authenticate(ctx context.Context, login, password string) (*AgentModel, error) {
	agent, err := s.GetAgent(ctx, login)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !agent.Enabled {
		return nil, ErrAgentDisabled
	}

	if !identity.VerifyPassword(password, agent.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return agent, nil
}
