package repositories

import (
	"context"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/repositories/storetest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStore_MessageStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, notifier contract.ChangeNotifier) contract.MessageStore {
		var opts []Option
		if notifier != nil {
			opts = append(opts, WithNotifier(notifier))
		}
		return NewBadgerStore(openBadger(t), logs.GetLoggerFromLevel(slog.LevelError), opts...)
	})
}

func TestBadgerStore_Messages_Survive_Reopen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	log := logs.GetLoggerFromLevel(slog.LevelError)

	// Given: A thread with a message written to disk
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store := NewBadgerStore(db, log)
	thread, err := store.CreateThread(ctx, domain.Thread{Type: domain.ThreadDirect, CreatorID: "alice"})
	req.NoError(err)
	m, err := store.InsertMessage(ctx, thread.ID, "alice", "persisted", false)
	req.NoError(err)
	req.NoError(db.Close())

	// When: Reopening the database
	db, err = badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()
	fetched, err := NewBadgerStore(db, log).GetMessage(ctx, m.ID)

	// Then: The message is intact
	req.NoError(err)
	req.Equal("persisted", fetched.Content)
	req.True(fetched.CreatedAt.Equal(m.CreatedAt))
}

func TestBadgerStore_Clock_Drives_Message_Keys(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given: A clock that goes backwards between inserts
	times := []time.Time{
		time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 12, 0, 5, 0, time.UTC),
		time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC),
	}
	tick := 0
	store := NewBadgerStore(openBadger(t), logs.GetLoggerFromLevel(slog.LevelError), WithClock(func() time.Time {
		at := times[min(tick, len(times)-1)]
		tick++
		return at
	}))
	thread, err := store.CreateThread(ctx, domain.Thread{Type: domain.ThreadGroup, CreatorID: "alice"})
	req.NoError(err)

	// When: Inserting two messages
	first, err := store.InsertMessage(ctx, thread.ID, "alice", "late", false)
	req.NoError(err)
	second, err := store.InsertMessage(ctx, thread.ID, "alice", "early", false)
	req.NoError(err)

	// Then: Listing follows created_at, not insertion order
	messages, err := store.ListMessages(ctx, thread.ID)
	req.NoError(err)
	req.Equal([]string{second.ID, first.ID}, []string{messages[0].ID, messages[1].ID})

	// And: The thread keeps the latest activity
	fetched, err := store.GetThread(ctx, thread.ID)
	req.NoError(err)
	req.True(fetched.LastMessageAt.Equal(times[1]))
}
