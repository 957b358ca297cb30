// Package storetest holds the behaviour every contract.MessageStore must
// share. Each store implementation runs Run from its own package tests.
package storetest

import (
	"context"
	"fmt"
	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// Factory builds an empty store wired to notifier.
type Factory func(t *testing.T, notifier contract.ChangeNotifier) contract.MessageStore

// Recorder is a ChangeNotifier keeping every change it was told about.
type Recorder struct {
	mu      sync.Mutex
	changes []domain.Change
}

func (r *Recorder) Notify(change domain.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *Recorder) Changes() []domain.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Change(nil), r.changes...)
}

// ThreadLister is implemented by stores that can enumerate every thread.
type ThreadLister interface {
	ListThreads(ctx context.Context) ([]domain.Thread, error)
}

func Run(t *testing.T, factory Factory) {
	tests := map[string]func(t *testing.T, factory Factory){
		"CreateThread_Validates":                  testCreateThreadValidates,
		"CreateThread_Duplicate":                  testCreateThreadDuplicate,
		"AddParticipant_Idempotent":               testAddParticipantIdempotent,
		"AddParticipant_UnknownThread":            testAddParticipantUnknownThread,
		"InsertMessage_Ordering_And_Thread_Touch": testInsertOrdering,
		"InsertMessage_Notifies":                  testInsertNotifies,
		"InsertMessage_UnknownThread":             testInsertUnknownThread,
		"Status_Forward_Only":                     testStatusForwardOnly,
		"Status_System_Message_Stays_Read":        testStatusSystemMessage,
		"Status_Concurrent_Updates_Keep_Max":      testStatusConcurrent,
		"LastRead_Monotonic":                      testLastReadMonotonic,
		"LastRead_Concurrent_Updates_Keep_Max":    testLastReadConcurrent,
		"LastRead_Other_User_Forbidden":           testLastReadForbidden,
		"SetMuted_Owner_Only":                     testSetMuted,
		"SoftDelete_Hides_Content_Freezes_Status": testSoftDelete,
		"SetEdited_Keeps_Status":                  testSetEdited,
		"GetMessage_NotFound":                     testGetMessageNotFound,
		"Profiles":                                testProfiles,
		"ListThreads_Most_Recent_First":           testListThreads,
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test(t, factory)
		})
	}
}

func newThread(t *testing.T, store contract.MessageStore, users ...string) domain.Thread {
	req := require.New(t)
	ctx := context.Background()
	thread, err := store.CreateThread(ctx, domain.Thread{Type: domain.ThreadGroup, CreatorID: users[0]})
	req.NoError(err)
	for _, user := range users {
		_, err := store.AddParticipant(ctx, thread.ID, user)
		req.NoError(err)
	}
	return thread
}

func testCreateThreadValidates(t *testing.T, factory Factory) {
	req := require.New(t)
	store := factory(t, nil)

	// Given: A listing thread without a listing reference
	thread := domain.Thread{Type: domain.ThreadListing, CreatorID: "alice"}

	// When: Creating it
	_, err := store.CreateThread(context.Background(), thread)

	// Then: The store rejects it
	req.ErrorIs(err, errors.ErrInvalidThread)
}

func testCreateThreadDuplicate(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)

	created, err := store.CreateThread(ctx, domain.Thread{ID: "t-1", Type: domain.ThreadDirect, CreatorID: "alice"})
	req.NoError(err)
	req.Equal("t-1", created.ID)
	req.False(created.CreatedAt.IsZero())

	_, err = store.CreateThread(ctx, domain.Thread{ID: "t-1", Type: domain.ThreadDirect, CreatorID: "bob"})
	req.ErrorIs(err, errors.ErrAlreadyExists)

	fetched, err := store.GetThread(ctx, "t-1")
	req.NoError(err)
	req.Equal("alice", fetched.CreatorID)
}

func testAddParticipantIdempotent(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	thread := newThread(t, store, "alice")

	first, err := store.AddParticipant(ctx, thread.ID, "bob")
	req.NoError(err)
	second, err := store.AddParticipant(ctx, thread.ID, "bob")
	req.NoError(err)
	req.True(first.JoinedAt.Equal(second.JoinedAt))

	participants, err := store.ListParticipants(ctx, thread.ID)
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, lo.Map(participants, func(p domain.Participant, _ int) string {
		return p.UserID
	}))
}

func testAddParticipantUnknownThread(t *testing.T, factory Factory) {
	req := require.New(t)
	store := factory(t, nil)

	_, err := store.AddParticipant(context.Background(), "missing", "bob")
	req.ErrorIs(err, errors.ErrNotFound)
}

func testInsertOrdering(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")

	// Given: Three messages sent one after the other
	var ids []string
	for i := range 3 {
		m, err := store.InsertMessage(ctx, thread.ID, "alice", fmt.Sprintf("hello %d", i), false)
		req.NoError(err)
		req.Equal(domain.StatusSent, m.Status)
		ids = append(ids, m.ID)
		time.Sleep(time.Millisecond)
	}

	// When: Listing the thread
	messages, err := store.ListMessages(ctx, thread.ID)
	req.NoError(err)

	// Then: They come back oldest first
	req.Equal(ids, lo.Map(messages, func(m domain.Message, _ int) string { return m.ID }))

	// And: The thread activity follows the last insert
	fetched, err := store.GetThread(ctx, thread.ID)
	req.NoError(err)
	req.NotNil(fetched.LastMessageAt)
	req.True(fetched.LastMessageAt.Equal(messages[2].CreatedAt))
	req.True(fetched.UpdatedAt.Equal(messages[2].CreatedAt))
}

func testInsertNotifies(t *testing.T, factory Factory) {
	req := require.New(t)
	recorder := &Recorder{}
	store := factory(t, recorder)
	thread := newThread(t, store, "alice")

	m, err := store.InsertMessage(context.Background(), thread.ID, "alice", "ping", false)
	req.NoError(err)

	changes := recorder.Changes()
	req.Len(changes, 1)
	req.Equal(domain.MessagesTable, changes[0].Table)
	req.Equal(domain.ChangeInsert, changes[0].Op)
	req.Equal(m.ID, changes[0].RowID)
	req.Equal(thread.ID, changes[0].ThreadID)
}

func testInsertUnknownThread(t *testing.T, factory Factory) {
	req := require.New(t)
	recorder := &Recorder{}
	store := factory(t, recorder)

	_, err := store.InsertMessage(context.Background(), "missing", "alice", "ping", false)
	req.ErrorIs(err, errors.ErrNotFound)
	req.Empty(recorder.Changes())
}

func testStatusForwardOnly(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")
	m, err := store.InsertMessage(ctx, thread.ID, "alice", "hi", false)
	req.NoError(err)

	// Given: The recipient already read the message
	updated, err := store.UpdateMessageStatus(ctx, m.ID, domain.StatusRead)
	req.NoError(err)
	req.Equal(domain.StatusRead, updated.Status)

	// When: A late delivery receipt arrives
	updated, err = store.UpdateMessageStatus(ctx, m.ID, domain.StatusDelivered)

	// Then: It is a silent no-op
	req.NoError(err)
	req.Equal(domain.StatusRead, updated.Status)
	fetched, err := store.GetMessage(ctx, m.ID)
	req.NoError(err)
	req.Equal(domain.StatusRead, fetched.Status)

	_, err = store.UpdateMessageStatus(ctx, m.ID, domain.MessageStatus(42))
	req.ErrorIs(err, errors.ErrUnknownStatus)
}

func testStatusSystemMessage(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	thread := newThread(t, store, "alice")

	m, err := store.InsertMessage(ctx, thread.ID, "alice", "alice joined", true)
	req.NoError(err)
	req.Equal(domain.StatusRead, m.Status)

	updated, err := store.UpdateMessageStatus(ctx, m.ID, domain.StatusDelivered)
	req.NoError(err)
	req.Equal(domain.StatusRead, updated.Status)
}

func testStatusConcurrent(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")
	m, err := store.InsertMessage(ctx, thread.ID, "alice", "race", false)
	req.NoError(err)

	// Given: Receipts racing in an arbitrary order
	statuses := []domain.MessageStatus{domain.StatusSent, domain.StatusDelivered, domain.StatusRead}
	var wg sync.WaitGroup
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateMessageStatus(ctx, m.ID, statuses[rand.Intn(len(statuses))])
			if err != nil {
				t.Errorf("update status: %v", err)
			}
		}()
	}
	_, err = store.UpdateMessageStatus(ctx, m.ID, domain.StatusRead)
	req.NoError(err)
	wg.Wait()

	// Then: The maximum requested status wins
	fetched, err := store.GetMessage(ctx, m.ID)
	req.NoError(err)
	req.Equal(domain.StatusRead, fetched.Status)
}

func testLastReadMonotonic(t *testing.T, factory Factory) {
	req := require.New(t)
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")
	ctx := auth.WithUserID(context.Background(), "bob")
	t2 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t2.Add(-time.Hour)

	// Given: Bob read up to t2
	p, err := store.UpdateLastRead(ctx, thread.ID, "bob", t2)
	req.NoError(err)
	req.True(p.LastReadAt.Equal(t2))

	// When: A stale client reports t1
	p, err = store.UpdateLastRead(ctx, thread.ID, "bob", t1)

	// Then: The read mark stays at t2
	req.NoError(err)
	req.True(p.LastReadAt.Equal(t2))

	participants, err := store.ListParticipants(ctx, thread.ID)
	req.NoError(err)
	bob, ok := lo.Find(participants, func(p domain.Participant) bool { return p.UserID == "bob" })
	req.True(ok)
	req.True(bob.LastReadAt.Equal(t2))
}

func testLastReadConcurrent(t *testing.T, factory Factory) {
	req := require.New(t)
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")
	ctx := auth.WithUserID(context.Background(), "bob")
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Given: Read marks from several clients racing in an arbitrary order
	marks := make([]time.Time, 30)
	for i := range marks {
		marks[i] = base.Add(time.Duration(rand.Intn(10_000)) * time.Second)
	}
	latest := lo.MaxBy(marks, func(a, b time.Time) bool { return a.After(b) })

	var wg sync.WaitGroup
	for _, at := range marks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.UpdateLastRead(ctx, thread.ID, "bob", at); err != nil {
				t.Errorf("update last read: %v", err)
			}
		}()
	}
	wg.Wait()

	// Then: The stored mark is the latest one reported
	participants, err := store.ListParticipants(ctx, thread.ID)
	req.NoError(err)
	bob, ok := lo.Find(participants, func(p domain.Participant) bool { return p.UserID == "bob" })
	req.True(ok)
	req.NotNil(bob.LastReadAt)
	req.True(bob.LastReadAt.Equal(latest), "got %v, want %v", bob.LastReadAt, latest)
}

func testLastReadForbidden(t *testing.T, factory Factory) {
	req := require.New(t)
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")

	_, err := store.UpdateLastRead(auth.WithUserID(context.Background(), "alice"), thread.ID, "bob", time.Now())
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = store.UpdateLastRead(context.Background(), thread.ID, "bob", time.Now())
	req.ErrorIs(err, errors.ErrUnauthenticated)

	_, err = store.UpdateLastRead(auth.WithUserID(context.Background(), "carol"), thread.ID, "carol", time.Now())
	req.ErrorIs(err, errors.ErrNotParticipant)
}

func testSetMuted(t *testing.T, factory Factory) {
	req := require.New(t)
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")

	// Given: Alice trying to mute the thread for Bob
	_, err := store.SetMuted(auth.WithUserID(context.Background(), "alice"), thread.ID, "bob", true)

	// Then: The store refuses
	req.ErrorIs(err, errors.ErrForbidden)

	// And: The owner can mute it
	p, err := store.SetMuted(auth.WithUserID(context.Background(), "bob"), thread.ID, "bob", true)
	req.NoError(err)
	req.True(p.IsMuted)
}

func testSoftDelete(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")
	m, err := store.InsertMessage(ctx, thread.ID, "alice", "secret", false)
	req.NoError(err)

	// Given: A deleted message
	deleted, err := store.SoftDelete(ctx, m.ID)
	req.NoError(err)
	req.NotNil(deleted.DeletedAt)
	req.Empty(deleted.Content)

	// When: A read receipt and a second delete come in
	updated, err := store.UpdateMessageStatus(ctx, m.ID, domain.StatusRead)
	req.NoError(err)
	again, err := store.SoftDelete(ctx, m.ID)
	req.NoError(err)

	// Then: Status is frozen, DeletedAt kept, content hidden but the row remains
	req.Equal(domain.StatusSent, updated.Status)
	req.True(again.DeletedAt.Equal(*deleted.DeletedAt))
	messages, err := store.ListMessages(ctx, thread.ID)
	req.NoError(err)
	req.Len(messages, 1)
	req.Empty(messages[0].Content)

	_, err = store.SetEdited(ctx, m.ID, "resurrected")
	req.ErrorIs(err, errors.ErrMessageDeleted)
}

func testSetEdited(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	thread := newThread(t, store, "alice", "bob")
	m, err := store.InsertMessage(ctx, thread.ID, "alice", "helo", false)
	req.NoError(err)
	_, err = store.UpdateMessageStatus(ctx, m.ID, domain.StatusDelivered)
	req.NoError(err)

	edited, err := store.SetEdited(ctx, m.ID, "hello")
	req.NoError(err)
	req.Equal("hello", edited.Content)
	req.NotNil(edited.EditedAt)
	req.Equal(domain.StatusDelivered, edited.Status)
	req.True(edited.CreatedAt.Equal(m.CreatedAt))
}

func testGetMessageNotFound(t *testing.T, factory Factory) {
	req := require.New(t)
	store := factory(t, nil)

	_, err := store.GetMessage(context.Background(), "missing")
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = store.SoftDelete(context.Background(), "missing")
	req.ErrorIs(err, errors.ErrNotFound)
}

func testProfiles(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)

	req.NoError(store.PutProfile(ctx, domain.UserProfile{ID: "alice", Username: lo.ToPtr("alice"), FullName: lo.ToPtr("Alice Martin"), AvatarURL: lo.ToPtr("https://cdn/a.png")}))
	req.NoError(store.PutProfile(ctx, domain.UserProfile{ID: "bob", Username: lo.ToPtr("bobby")}))

	profiles, err := store.GetProfiles(ctx, []string{"alice", "bob", "alice", "ghost"})
	req.NoError(err)
	req.Len(profiles, 2)
	req.Equal("Alice Martin", profiles["alice"].DisplayName())
	req.Equal("https://cdn/a.png", *profiles["alice"].AvatarURL)
	req.Nil(profiles["bob"].AvatarURL)
}

func testListThreads(t *testing.T, factory Factory) {
	req := require.New(t)
	ctx := context.Background()
	store := factory(t, nil)
	lister, ok := store.(ThreadLister)
	if !ok {
		t.Skip("store cannot list threads")
	}
	quiet := newThread(t, store, "alice")
	time.Sleep(time.Millisecond)
	busy := newThread(t, store, "bob")
	time.Sleep(time.Millisecond)
	_, err := store.InsertMessage(ctx, quiet.ID, "alice", "bump", false)
	req.NoError(err)

	threads, err := lister.ListThreads(ctx)

	req.NoError(err)
	req.Equal([]string{quiet.ID, busy.ID}, lo.Map(threads, func(th domain.Thread, _ int) string { return th.ID }))
}
