package store

import (
	"context"
	"errors"
	"time"
)

// Baseline catalog rows created on first start. Dispatch assumes at least one
// queue and one client exist; release options and skills are convenience
// defaults an administrator can replace.
var (
	defaultQueues = []QueueModel{
		{Name: "default_queue", Weight: 1, Recipe: "default", Group: "Default"},
	}

	defaultClients = []ClientModel{
		{ID: "00010001", Label: "Demo Client", AutoendWrapup: 0},
	}

	defaultReleaseOptions = []ReleaseOptionModel{
		{Label: "Lunch", Bias: 0},
		{Label: "Break", Bias: 0},
		{Label: "Meeting", Bias: -1},
	}

	defaultSkills = []SkillModel{
		{Atom: "english", Name: "English", Description: "Speaks English", Group: "Language"},
		{Atom: "german", Name: "German", Description: "Speaks German", Group: "Language"},
		{Atom: "support", Name: "Support", Description: "Technical support", Group: "Misc"},
		{Atom: "sales", Name: "Sales", Description: "Sales inquiries", Group: "Misc"},
	}
)

// EnsureDefaults idempotently seeds the baseline catalog. Existing rows are
// left untouched; duplicate errors from concurrent starts are ignored.
func (s *GORMStore) EnsureDefaults(ctx context.Context) error {
	for _, q := range defaultQueues {
		q.CreatedAt = time.Now()
		if err := s.CreateQueueConfig(ctx, &q); err != nil && !errors.Is(err, ErrDuplicateQueue) {
			return err
		}
	}

	for _, c := range defaultClients {
		if _, err := s.CreateClient(ctx, &c); err != nil && !errors.Is(err, ErrDuplicateClient) {
			return err
		}
	}

	existing, err := s.ListReleaseOptions(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		for _, opt := range defaultReleaseOptions {
			if err := s.CreateReleaseOption(ctx, &opt); err != nil && !errors.Is(err, ErrDuplicateReleaseOption) {
				return err
			}
		}
	}

	for _, sk := range defaultSkills {
		if err := s.CreateSkill(ctx, &sk); err != nil && !errors.Is(err, ErrDuplicateSkill) {
			return err
		}
	}

	return nil
}
