package sqlstore

import (
	"context"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/repositories/storetest"
	"path/filepath"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestSQLStore_MessageStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, notifier contract.ChangeNotifier) contract.MessageStore {
		var opts []Option
		if notifier != nil {
			opts = append(opts, WithNotifier(notifier))
		}
		return NewSQLStore(openTestDB(t), logs.GetLoggerFromLevel(slog.LevelError), opts...)
	})
}

func TestSQLStore_Stale_Status_Leaves_Row_Untouched(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openTestDB(t)
	store := NewSQLStore(db, logs.GetLoggerFromLevel(slog.LevelError))
	thread, err := store.CreateThread(ctx, domain.Thread{Type: domain.ThreadDirect, CreatorID: "alice"})
	req.NoError(err)
	m, err := store.InsertMessage(ctx, thread.ID, "alice", "hi", false)
	req.NoError(err)
	_, err = store.UpdateMessageStatus(ctx, m.ID, domain.StatusRead)
	req.NoError(err)

	// When: Issuing the same conditional update a stale client would
	result := db.Model(&messageRow{}).
		Where("id = ? AND status < ? AND is_system = ? AND deleted_at IS NULL", m.ID, int(domain.StatusDelivered), false).
		Update("status", int(domain.StatusDelivered))

	// Then: No row matches
	req.NoError(result.Error)
	req.Zero(result.RowsAffected)
}
