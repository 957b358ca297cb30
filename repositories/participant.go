package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// AddParticipant is idempotent: an existing membership is returned as is,
// keeping its original JoinedAt.
func (s *BadgerStore) AddParticipant(ctx context.Context, threadID, userID string) (domain.Participant, error) {
	var participant domain.Participant
	err := s.update(func(txn *badger.Txn) error {
		if _, err := get(txn, threadKey(threadID), "thread "+threadID, decodeThread); err != nil {
			return err
		}
		existing, err := get(txn, participantKey(threadID, userID), "participant", decodeParticipant)
		switch {
		case err == nil:
			participant = existing
			return nil
		case !stderrors.Is(err, errors.ErrNotFound):
			return err
		}
		participant = domain.NewParticipant(threadID, userID, s.now())
		return txn.Set(participantKey(threadID, userID), encodeParticipant(participant))
	})
	return participant, err
}

func (s *BadgerStore) ListParticipants(ctx context.Context, threadID string) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		participants, err = scan(txn, participantPrefix(threadID), decodeParticipant)
		return err
	})
	return participants, err
}

// UpdateLastRead moves the acting user's read mark forward. Older or equal
// values leave the row untouched and the current row is returned.
func (s *BadgerStore) UpdateLastRead(ctx context.Context, threadID, userID string, at time.Time) (domain.Participant, error) {
	if err := requireActor(ctx, userID); err != nil {
		return domain.Participant{}, err
	}
	return s.updateParticipant(threadID, userID, func(p *domain.Participant) (bool, error) {
		return p.AdvanceLastRead(at.UTC()), nil
	})
}

func (s *BadgerStore) SetMuted(ctx context.Context, threadID, userID string, muted bool) (domain.Participant, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return domain.Participant{}, err
	}
	return s.updateParticipant(threadID, userID, func(p *domain.Participant) (bool, error) {
		if err := p.SetMuted(actorID, muted); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *BadgerStore) updateParticipant(threadID, userID string, apply func(p *domain.Participant) (bool, error)) (domain.Participant, error) {
	var participant domain.Participant
	err := s.update(func(txn *badger.Txn) error {
		p, err := get(txn, participantKey(threadID, userID), "participant", decodeParticipant)
		if err != nil {
			return fmt.Errorf("%w: %w", errors.ErrNotParticipant, err)
		}
		changed, err := apply(&p)
		if err != nil {
			return err
		}
		participant = p
		if !changed {
			return nil
		}
		return txn.Set(participantKey(threadID, userID), encodeParticipant(p))
	})
	return participant, err
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
