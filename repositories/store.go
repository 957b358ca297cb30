package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const maxTxnRetries = 32

// BadgerStore persists threads, participants, messages and profiles in BadgerDB.
//
// Keys:
//
//	thread:{thread_id}
//	participant:{thread_id}:{user_id}
//	msg:{thread_id}:{created_at_padded}:{message_id}
//	idx:msg:{message_id} -> message key
//	profile:{user_id}
//
// Forward-only updates read and write in one optimistic transaction; a
// concurrent writer makes the commit fail with ErrConflict and the whole
// read-compare-write is retried against the fresh row.
type BadgerStore struct {
	db       *badger.DB
	log      *slog.Logger
	notifier contract.ChangeNotifier
	clock    func() time.Time
}

type Option func(*BadgerStore)

// WithNotifier pushes every committed message insert to notifier.
func WithNotifier(notifier contract.ChangeNotifier) Option {
	return func(s *BadgerStore) {
		s.notifier = notifier
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *BadgerStore) {
		s.clock = clock
	}
}

func NewBadgerStore(db *badger.DB, log *slog.Logger, opts ...Option) *BadgerStore {
	s := &BadgerStore{
		db:    db,
		log:   log,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BadgerStore) now() time.Time {
	return s.clock().UTC()
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnRetries; attempt++ {
		err = s.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("transaction conflict, retrying", "attempt", attempt)
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxTxnRetries, err)
}

func threadKey(id string) []byte {
	return []byte("thread:" + id)
}

func participantPrefix(threadID string) []byte {
	return []byte("participant:" + threadID + ":")
}

func participantKey(threadID, userID string) []byte {
	return append(participantPrefix(threadID), userID...)
}

func messagePrefix(threadID string) []byte {
	return []byte("msg:" + threadID + ":")
}

// messageKey sorts chronologically thanks to the 19-digit zero padding; the
// id breaks ties between messages created at the same nanosecond.
func messageKey(threadID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", threadID, createdAt.UnixNano(), id))
}

func messageIndexKey(id string) []byte {
	return []byte("idx:msg:" + id)
}

func profileKey(id string) []byte {
	return []byte("profile:" + id)
}

// get returns ErrNotFound wrapped with what when key is missing.
func get[T any](txn *badger.Txn, key []byte, what string, decode func([]byte) (T, error)) (T, error) {
	var zero T
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return zero, fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	}
	if err != nil {
		return zero, err
	}
	var out T
	err = item.Value(func(val []byte) error {
		out, err = decode(val)
		return err
	})
	return out, err
}

func scan[T any](txn *badger.Txn, prefix []byte, decode func([]byte) (T, error)) ([]T, error) {
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	var out []T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			v, err := decode(val)
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
