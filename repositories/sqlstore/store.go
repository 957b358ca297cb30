// Package sqlstore is the relational MessageStore, backed by gorm.
// Forward-only fields are moved with conditional UPDATE statements so the
// comparison and the write happen atomically in the database.
package sqlstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SQLStore struct {
	db       *gorm.DB
	log      *slog.Logger
	notifier contract.ChangeNotifier
	clock    func() time.Time
}

type Option func(*SQLStore)

// WithNotifier pushes every committed message insert to notifier.
func WithNotifier(notifier contract.ChangeNotifier) Option {
	return func(s *SQLStore) {
		s.notifier = notifier
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *SQLStore) {
		s.clock = clock
	}
}

// OpenSQLite opens (or creates) the sqlite database at path and migrates it.
// SQLite allows a single writer, so the pool is capped to one connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("sqlstore: auto-migrate: %w", err)
	}
	return nil
}

func NewSQLStore(db *gorm.DB, log *slog.Logger, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:    db,
		log:   log,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLStore) now() time.Time {
	return s.clock().UTC()
}

func (s *SQLStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// notFound maps gorm's missing record error onto ErrNotFound.
func notFound(err error, what string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	}
	return err
}
