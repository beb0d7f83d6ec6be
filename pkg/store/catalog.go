package store

import (
	"context"
)

// ============================================
// CLIENT (BRAND) OPERATIONS
// ============================================

func (s *GORMStore) GetClient(ctx context.Context, id string) (*ClientModel, error) {
	return getByField[ClientModel](s.db, ctx, "id", id, ErrClientNotFound)
}

func (s *GORMStore) ListClients(ctx context.Context) ([]*ClientModel, error) {
	return listAll[ClientModel](s.db, ctx)
}

func (s *GORMStore) CreateClient(ctx context.Context, client *ClientModel) (string, error) {
	return createWithID(s.db, ctx, client, func(c *ClientModel, id string) { c.ID = id }, client.ID, ErrDuplicateClient)
}

func (s *GORMStore) DeleteClient(ctx context.Context, id string) error {
	return deleteByField[ClientModel](s.db, ctx, "id", id, ErrClientNotFound)
}

// ============================================
// RELEASE OPTION OPERATIONS
// ============================================

func (s *GORMStore) ListReleaseOptions(ctx context.Context) ([]*ReleaseOptionModel, error) {
	return listAll[ReleaseOptionModel](s.db, ctx)
}

func (s *GORMStore) CreateReleaseOption(ctx context.Context, opt *ReleaseOptionModel) error {
	if err := opt.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(opt).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateReleaseOption
		}
		return err
	}
	return nil
}

func (s *GORMStore) DeleteReleaseOption(ctx context.Context, id uint) error {
	return deleteByField[ReleaseOptionModel](s.db, ctx, "id", id, ErrReleaseOptionNotFound)
}

// ============================================
// SKILL OPERATIONS
// ============================================

func (s *GORMStore) GetSkill(ctx context.Context, atom string) (*SkillModel, error) {
	return getByField[SkillModel](s.db, ctx, "atom", atom, ErrSkillNotFound)
}

func (s *GORMStore) ListSkills(ctx context.Context) ([]*SkillModel, error) {
	return listAll[SkillModel](s.db, ctx)
}

func (s *GORMStore) CreateSkill(ctx context.Context, skill *SkillModel) error {
	if err := s.db.WithContext(ctx).Create(skill).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateSkill
		}
		return err
	}
	return nil
}
