package repositories

import (
	"context"
	"fmt"
	"market-chat/domain"
	"market-chat/errors"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// CreateThread stores a new thread. An empty ID gets a generated one.
func (s *BadgerStore) CreateThread(ctx context.Context, thread domain.Thread) (domain.Thread, error) {
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

	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(threadKey(thread.ID)); err == nil {
			return fmt.Errorf("thread %s: %w", thread.ID, errors.ErrAlreadyExists)
		}
		return txn.Set(threadKey(thread.ID), encodeThread(thread))
	})
	if err != nil {
		return domain.Thread{}, err
	}
	return thread, nil
}

func (s *BadgerStore) GetThread(ctx context.Context, threadID string) (domain.Thread, error) {
	var thread domain.Thread
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		thread, err = get(txn, threadKey(threadID), "thread "+threadID, decodeThread)
		return err
	})
	return thread, err
}

// ListThreads returns every thread, most recently active first.
func (s *BadgerStore) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	var threads []domain.Thread
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		threads, err = scan(txn, []byte("thread:"), decodeThread)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortByActivity(threads)
	return threads, nil
}

func sortByActivity(threads []domain.Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
}
