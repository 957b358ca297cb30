package sqlstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/errors"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// AddParticipant is idempotent: an existing membership is returned as is.
func (s *SQLStore) AddParticipant(ctx context.Context, threadID, userID string) (domain.Participant, error) {
	var participant domain.Participant
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getThread(tx, threadID); err != nil {
			return err
		}
		existing, err := getParticipant(tx, threadID, userID)
		switch {
		case err == nil:
			participant = existing
			return nil
		case !stderrors.Is(err, errors.ErrNotFound):
			return err
		}
		participant = domain.NewParticipant(threadID, userID, s.now())
		row := fromParticipant(participant)
		return tx.Create(&row).Error
	})
	return participant, err
}

func (s *SQLStore) ListParticipants(ctx context.Context, threadID string) ([]domain.Participant, error) {
	var rows []participantRow
	if err := s.conn(ctx).Where("thread_id = ?", threadID).Order("user_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r participantRow, _ int) domain.Participant {
		return r.toDomain()
	}), nil
}

// UpdateLastRead only writes when at is strictly after the stored value.
func (s *SQLStore) UpdateLastRead(ctx context.Context, threadID, userID string, at time.Time) (domain.Participant, error) {
	if err := requireActor(ctx, userID); err != nil {
		return domain.Participant{}, err
	}
	at = at.UTC()
	nanos := at.UnixNano()
	err := s.conn(ctx).Model(&participantRow{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Where("(last_read_nanos IS NULL OR last_read_nanos < ?)", nanos).
		Updates(map[string]any{
			"last_read_at":    at,
			"last_read_nanos": nanos,
		}).Error
	if err != nil {
		return domain.Participant{}, fmt.Errorf("sqlstore: update last read: %w", err)
	}
	return s.participant(ctx, threadID, userID)
}

func (s *SQLStore) SetMuted(ctx context.Context, threadID, userID string, muted bool) (domain.Participant, error) {
	if err := requireActor(ctx, userID); err != nil {
		return domain.Participant{}, err
	}
	err := s.conn(ctx).Model(&participantRow{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Update("is_muted", muted).Error
	if err != nil {
		return domain.Participant{}, fmt.Errorf("sqlstore: set muted: %w", err)
	}
	return s.participant(ctx, threadID, userID)
}

func (s *SQLStore) participant(ctx context.Context, threadID, userID string) (domain.Participant, error) {
	p, err := getParticipant(s.conn(ctx), threadID, userID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return domain.Participant{}, fmt.Errorf("%w: %w", errors.ErrNotParticipant, err)
	}
	return p, err
}

func getParticipant(tx *gorm.DB, threadID, userID string) (domain.Participant, error) {
	var row participantRow
	err := tx.Where("thread_id = ? AND user_id = ?", threadID, userID).First(&row).Error
	if err != nil {
		return domain.Participant{}, notFound(err, "participant")
	}
	return row.toDomain(), nil
}

// requireActor only lets users act on their own participant row.
func requireActor(ctx context.Context, userID string) error {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	if actorID != userID {
		return fmt.Errorf("acting as %s on %s: %w", actorID, userID, errors.ErrForbidden)
	}
	return nil
}
