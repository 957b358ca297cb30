package repositories

import (
	"context"
	"fmt"
	"market-chat/domain"
	"market-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// InsertMessage stores a message and refreshes the thread activity in the
// same transaction. The change notifier hears about it after the commit.
func (s *BadgerStore) InsertMessage(ctx context.Context, threadID, senderID, content string, isSystem bool) (domain.Message, error) {
	message := domain.NewMessage(uuid.NewString(), threadID, senderID, content, isSystem, s.now())

	err := s.update(func(txn *badger.Txn) error {
		thread, err := get(txn, threadKey(threadID), "thread "+threadID, decodeThread)
		if err != nil {
			return err
		}
		thread.Touch(message.CreatedAt)
		if err := txn.Set(threadKey(threadID), encodeThread(thread)); err != nil {
			return err
		}
		key := messageKey(threadID, message.CreatedAt, message.ID)
		if err := txn.Set(key, encodeMessage(message)); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(message.ID), key)
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
func (s *BadgerStore) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		messages, err = scan(txn, messagePrefix(threadID), decodeMessage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m domain.Message, _ int) domain.Message {
		return m.Visible()
	}), nil
}

func (s *BadgerStore) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	var message domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		_, message, err = getMessage(txn, messageID)
		return err
	})
	return message.Visible(), err
}

// UpdateMessageStatus only ever moves the status forward. Backward or equal
// requests, system and deleted messages are left untouched.
func (s *BadgerStore) UpdateMessageStatus(ctx context.Context, messageID string, status domain.MessageStatus) (domain.Message, error) {
	if !status.Valid() {
		return domain.Message{}, fmt.Errorf("status %d: %w", status, errors.ErrUnknownStatus)
	}
	return s.updateMessage(messageID, func(m *domain.Message) (bool, error) {
		return m.AdvanceStatus(status), nil
	})
}

func (s *BadgerStore) SetEdited(ctx context.Context, messageID, content string) (domain.Message, error) {
	return s.updateMessage(messageID, func(m *domain.Message) (bool, error) {
		return true, m.Edit(content, s.now())
	})
}

// SoftDelete keeps the row and its content, stamping DeletedAt once.
func (s *BadgerStore) SoftDelete(ctx context.Context, messageID string) (domain.Message, error) {
	return s.updateMessage(messageID, func(m *domain.Message) (bool, error) {
		return m.SoftDelete(s.now()), nil
	})
}

func (s *BadgerStore) updateMessage(messageID string, apply func(m *domain.Message) (bool, error)) (domain.Message, error) {
	var message domain.Message
	err := s.update(func(txn *badger.Txn) error {
		key, m, err := getMessage(txn, messageID)
		if err != nil {
			return err
		}
		changed, err := apply(&m)
		if err != nil {
			return err
		}
		message = m
		if !changed {
			return nil
		}
		return txn.Set(key, encodeMessage(m))
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message.Visible(), nil
}

func getMessage(txn *badger.Txn, messageID string) ([]byte, domain.Message, error) {
	key, err := get(txn, messageIndexKey(messageID), "message "+messageID, func(val []byte) ([]byte, error) {
		return append([]byte(nil), val...), nil
	})
	if err != nil {
		return nil, domain.Message{}, err
	}
	message, err := get(txn, key, "message "+messageID, decodeMessage)
	return key, message, err
}
