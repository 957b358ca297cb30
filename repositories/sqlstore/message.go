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

// InsertMessage stores a message and refreshes the thread activity in one
// transaction. The change notifier hears about it after the commit.
func (s *SQLStore) InsertMessage(ctx context.Context, threadID, senderID, content string, isSystem bool) (domain.Message, error) {
	message := domain.NewMessage(uuid.NewString(), threadID, senderID, content, isSystem, s.now())

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		thread, err := getThread(tx, threadID)
		if err != nil {
			return err
		}
		row := fromMessage(message)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("sqlstore: insert message: %w", err)
		}
		thread.Touch(message.CreatedAt)
		return tx.Model(&threadRow{}).Where("id = ?", threadID).Updates(map[string]any{
			"updated_at":      thread.UpdatedAt,
			"last_message_at": thread.LastMessageAt,
		}).Error
	})
	if err != nil {
		return domain.Message{}, err
	}

	if s.notifier != nil {
		s.notifier.Notify(domain.Change{
			Table:       domain.MessagesTable,
			Op:          domain.ChangeInsert,
			RowID:       message.ID,
			ThreadID:    threadID,
			CommittedAt: message.CreatedAt,
		})
	}
	return message.Visible(), nil
}

// ListMessages returns the thread's messages oldest first, as readers see them.
func (s *SQLStore) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	var rows []messageRow
	err := s.conn(ctx).Where("thread_id = ?", threadID).
		Order("created_at_nanos ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r messageRow, _ int) domain.Message {
		return r.toDomain().Visible()
	}), nil
}

func (s *SQLStore) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	m, err := getMessage(s.conn(ctx), messageID)
	if err != nil {
		return domain.Message{}, err
	}
	return m.Visible(), nil
}

// UpdateMessageStatus moves the status forward in a single statement.
// Zero affected rows means the request was stale and is ignored.
func (s *SQLStore) UpdateMessageStatus(ctx context.Context, messageID string, status domain.MessageStatus) (domain.Message, error) {
	if !status.Valid() {
		return domain.Message{}, fmt.Errorf("status %d: %w", status, errors.ErrUnknownStatus)
	}
	err := s.conn(ctx).Model(&messageRow{}).
		Where("id = ? AND status < ? AND is_system = ? AND deleted_at IS NULL", messageID, int(status), false).
		Update("status", int(status)).Error
	if err != nil {
		return domain.Message{}, fmt.Errorf("sqlstore: update status: %w", err)
	}
	return s.GetMessage(ctx, messageID)
}

func (s *SQLStore) SetEdited(ctx context.Context, messageID, content string) (domain.Message, error) {
	result := s.conn(ctx).Model(&messageRow{}).
		Where("id = ? AND deleted_at IS NULL", messageID).
		Updates(map[string]any{
			"content":   content,
			"edited_at": s.now(),
		})
	if result.Error != nil {
		return domain.Message{}, fmt.Errorf("sqlstore: edit message: %w", result.Error)
	}
	m, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if result.RowsAffected == 0 && m.IsDeleted() {
		return domain.Message{}, errors.ErrMessageDeleted
	}
	return m, nil
}

// SoftDelete stamps deleted_at once and never removes the row.
func (s *SQLStore) SoftDelete(ctx context.Context, messageID string) (domain.Message, error) {
	err := s.conn(ctx).Model(&messageRow{}).
		Where("id = ? AND deleted_at IS NULL", messageID).
		Update("deleted_at", s.now()).Error
	if err != nil {
		return domain.Message{}, fmt.Errorf("sqlstore: soft delete: %w", err)
	}
	return s.GetMessage(ctx, messageID)
}

func getMessage(tx *gorm.DB, messageID string) (domain.Message, error) {
	var row messageRow
	if err := tx.Where("id = ?", messageID).First(&row).Error; err != nil {
		return domain.Message{}, notFound(err, "message "+messageID)
	}
	return row.toDomain(), nil
}
