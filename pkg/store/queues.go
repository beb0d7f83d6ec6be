package store

import (
	"context"
	"time"
)

// ============================================
// QUEUE CONFIGURATION OPERATIONS
// ============================================
//
// Queue rows are the persistent source of truth the queue manager restarts
// dead workers from. Worker handles themselves are never persisted.

func (s *GORMStore) GetQueueConfig(ctx context.Context, name string) (*QueueModel, error) {
	return getByField[QueueModel](s.db, ctx, "name", name, ErrQueueNotFound)
}

func (s *GORMStore) ListQueueConfigs(ctx context.Context) ([]*QueueModel, error) {
	return listAll[QueueModel](s.db, ctx)
}

func (s *GORMStore) CreateQueueConfig(ctx context.Context, queue *QueueModel) error {
	if queue.Weight < 1 {
		queue.Weight = 1
	}
	if queue.Recipe == "" {
		queue.Recipe = "default"
	}
	queue.CreatedAt = time.Now()

	if err := s.db.WithContext(ctx).Create(queue).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateQueue
		}
		return err
	}
	return nil
}

func (s *GORMStore) UpdateQueueConfig(ctx context.Context, queue *QueueModel) error {
	var existing QueueModel
	if err := s.db.WithContext(ctx).Where("name = ?", queue.Name).First(&existing).Error; err != nil {
		return convertNotFoundError(err, ErrQueueNotFound)
	}

	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Weight", "Recipe", "Group").
		Updates(queue).Error
}

func (s *GORMStore) DeleteQueueConfig(ctx context.Context, name string) error {
	return deleteByField[QueueModel](s.db, ctx, "name", name, ErrQueueNotFound)
}
