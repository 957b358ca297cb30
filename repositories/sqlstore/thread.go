package sqlstore

import (
	"context"
	"fmt"
	"market-chat/domain"
	"market-chat/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// CreateThread stores a new thread. An empty ID gets a generated one.
func (s *SQLStore) CreateThread(ctx context.Context, thread domain.Thread) (domain.Thread, error) {
	if err := thread.Validate(); err != nil {
		return domain.Thread{}, err
	}
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	now := s.now()
	thread.CreatedAt = now
	thread.UpdatedAt = now
	thread.LastMessageAt = nil

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&threadRow{}).Where("id = ?", thread.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("thread %s: %w", thread.ID, errors.ErrAlreadyExists)
		}
		row := fromThread(thread)
		return tx.Create(&row).Error
	})
	if err != nil {
		return domain.Thread{}, err
	}
	return thread, nil
}

func (s *SQLStore) GetThread(ctx context.Context, threadID string) (domain.Thread, error) {
	return getThread(s.conn(ctx), threadID)
}

func getThread(tx *gorm.DB, threadID string) (domain.Thread, error) {
	var row threadRow
	if err := tx.Where("id = ?", threadID).First(&row).Error; err != nil {
		return domain.Thread{}, notFound(err, "thread "+threadID)
	}
	return row.toDomain(), nil
}

// ListThreads returns every thread, most recently active first.
func (s *SQLStore) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var rows []threadRow
	if err := s.conn(ctx).Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r threadRow, _ int) domain.Thread { return r.toDomain() }), nil
}
