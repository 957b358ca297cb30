package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/feed"
	"market-chat/mocks"
	"market-chat/runtime/workers"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	hub     *feed.Hub
	bus     *EventBus
	manager *SubscriptionManager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	sup := workers.NewSupervisor(log, 10*time.Millisecond)
	hub := feed.NewHub(log, sup, 64)
	bus := NewEventBus(log)
	manager := NewSubscriptionManager(log, hub, bus, 10*time.Millisecond)
	t.Cleanup(func() {
		manager.CloseAll()
		hub.Close()
		sup.Stop()
	})
	return fixture{hub: hub, bus: bus, manager: manager}
}

func insertChange(threadID, messageID string) domain.Change {
	return domain.Change{Table: domain.MessagesTable, Op: domain.ChangeInsert, ThreadID: threadID, RowID: messageID}
}

type refreshCounter struct {
	mu      sync.Mutex
	changes []domain.Change
}

func (c *refreshCounter) refresh(change domain.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, change)
}

func (c *refreshCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

func (c *refreshCounter) rowIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.changes))
	for _, change := range c.changes {
		ids = append(ids, change.RowID)
	}
	return ids
}

func TestSubscription_Duplicate_Deliveries_Each_Refresh(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	counter := &refreshCounter{}

	// Given a subscription on thread T1
	sub, err := f.manager.Open(context.Background(), ThreadScope("T1"), counter.refresh)
	req.NoError(err)
	req.Equal("T1", sub.Filter().ThreadID)
	req.Equal(domain.MessagesTable, sub.Filter().Table)

	// When the feed delivers the same insert twice, plus one for another thread
	f.hub.Notify(insertChange("T1", "m1"))
	f.hub.Notify(insertChange("T1", "m1"))
	f.hub.Notify(insertChange("T2", "m2"))

	// Then the refresh ran once per delivery of T1
	req.Eventually(func() bool { return counter.count() == 2 }, time.Second, 5*time.Millisecond)
	req.Never(func() bool { return counter.count() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
	req.Equal([]string{"m1", "m1"}, counter.rowIDs())
}

func TestSubscription_No_Refresh_After_Close(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	counter := &refreshCounter{}

	sub, err := f.manager.Open(context.Background(), ThreadScope("T1"), counter.refresh)
	req.NoError(err)
	f.hub.Notify(insertChange("T1", "m1"))
	req.Eventually(func() bool { return counter.count() == 1 }, time.Second, 5*time.Millisecond)

	// When the subscription is closed, twice
	f.manager.Close(sub)
	sub.Close()
	req.True(sub.Closed())
	req.Equal(0, f.manager.Len())
	req.Equal(0, f.hub.Len())

	// Then a later event is not delivered
	f.hub.Notify(insertChange("T1", "m2"))
	req.Never(func() bool { return counter.count() > 1 }, 100*time.Millisecond, 5*time.Millisecond)
}

func TestSubscription_Close_Discards_Queued_Changes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	sub, err := f.manager.Open(context.Background(), AllThreads(), func(domain.Change) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
	})
	req.NoError(err)

	// Given one refresh in flight and two more queued in the stream
	f.hub.Notify(insertChange("T1", "m1"))
	<-started
	f.hub.Notify(insertChange("T1", "m2"))
	f.hub.Notify(insertChange("T1", "m3"))

	// When closing while the refresh runs
	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()

	// Then Close waits for the running refresh
	select {
	case <-closed:
		req.Fail("Close returned while a refresh was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-closed

	// And nothing queued is delivered afterwards
	req.Never(func() bool { return calls.Load() > 1 }, 100*time.Millisecond, 5*time.Millisecond)
}

func TestSubscription_Global_And_Thread_Scopes_Both_Fire(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	global, thread := &refreshCounter{}, &refreshCounter{}

	_, err := f.manager.Open(context.Background(), AllThreads(), global.refresh)
	req.NoError(err)
	_, err = f.manager.Open(context.Background(), ThreadScope("T1"), thread.refresh)
	req.NoError(err)
	req.Equal(2, f.manager.Len())

	f.hub.Notify(insertChange("T1", "m1"))
	f.hub.Notify(insertChange("T2", "m2"))

	req.Eventually(func() bool { return global.count() == 2 && thread.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscription_Independent_Close(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	first, second := &refreshCounter{}, &refreshCounter{}

	subA, err := f.manager.Open(context.Background(), ThreadScope("T1"), first.refresh)
	req.NoError(err)
	_, err = f.manager.Open(context.Background(), ThreadScope("T1"), second.refresh)
	req.NoError(err)

	subA.Close()
	f.hub.Notify(insertChange("T1", "m1"))

	req.Eventually(func() bool { return second.count() == 1 }, time.Second, 5*time.Millisecond)
	req.Equal(0, first.count())
}

func TestSubscription_Publishes_On_Bus(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	received := make(chan event.MessageReceived, 1)
	f.bus.Subscribe(event.MessageReceivedType, func(_ context.Context, evt event.Event) error {
		received <- evt.Payload.(event.MessageReceived)
		return nil
	})

	_, err := f.manager.Open(context.Background(), ThreadScope("T1"), nil, WithBusPublication())
	req.NoError(err)
	f.hub.Notify(insertChange("T1", "m1"))

	select {
	case payload := <-received:
		req.Equal("m1", payload.MessageID)
		req.Equal("T1", payload.ThreadID)
		req.NotZero(payload.Seq)
	case <-time.After(time.Second):
		req.Fail("message-received not published")
	}
}

func TestSubscription_Reopens_After_Reconnection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	counter := &refreshCounter{}

	sub, err := f.manager.Open(context.Background(), ThreadScope("T1"), counter.refresh)
	req.NoError(err)
	f.hub.Notify(insertChange("T1", "m1"))
	req.Eventually(func() bool { return counter.count() == 1 }, time.Second, 5*time.Millisecond)

	// When the transport drops and an insert happens while disconnected
	f.hub.Interrupt()
	f.hub.Notify(insertChange("T1", "m2"))

	// Then the subscription comes back on its own with a single stream
	req.Eventually(func() bool { return sub.Reopens() == 1 }, 2*time.Second, 5*time.Millisecond)
	req.Equal(1, f.hub.Len())
	req.Equal("T1", sub.Filter().ThreadID)

	// And the replay covers the missed insert, repeating the last seen one
	req.Eventually(func() bool { return counter.count() == 3 }, time.Second, 5*time.Millisecond)
	req.Equal([]string{"m1", "m1", "m2"}, counter.rowIDs())

	// And live delivery resumed
	f.hub.Notify(insertChange("T1", "m3"))
	req.Eventually(func() bool { return counter.count() == 4 }, time.Second, 5*time.Millisecond)
}

func TestSubscription_Open_Failure_Leaves_Nothing(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	feedMock := mocks.NewMockChangeFeed(ctrl)
	manager := NewSubscriptionManager(log, feedMock, NewEventBus(log), 10*time.Millisecond)

	// Given the feed cannot connect
	feedMock.EXPECT().Subscribe(gomock.Any(), ThreadScope("T1").Filter()).
		Return(nil, fmt.Errorf("connection refused")).
		Times(1)

	// When opening
	sub, err := manager.Open(context.Background(), ThreadScope("T1"), func(domain.Change) {})

	// Then the failure is surfaced and nothing is registered
	req.Error(err)
	req.Nil(sub)
	req.Equal(0, manager.Len())
}

func TestSubscription_Reopen_Retries_And_Reports_Errors(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	feedMock := mocks.NewMockChangeFeed(ctrl)
	bus := NewEventBus(log)
	manager := NewSubscriptionManager(log, feedMock, bus, 5*time.Millisecond)

	var reported atomic.Int32
	bus.Subscribe(event.ChatErrorType, func(_ context.Context, evt event.Event) error {
		if evt.Payload.(event.ChatError).Op == "reopen" {
			reported.Add(1)
		}
		return nil
	})

	firstChanges, firstStatus := make(chan domain.Change, 1), make(chan domain.StreamStatus, 1)
	secondChanges, secondStatus := make(chan domain.Change, 1), make(chan domain.StreamStatus, 1)
	first := mocks.NewMockStream(ctrl)
	first.EXPECT().StartSeq().Return(uint64(0)).AnyTimes()
	first.EXPECT().Changes().Return((<-chan domain.Change)(firstChanges)).AnyTimes()
	first.EXPECT().Status().Return((<-chan domain.StreamStatus)(firstStatus)).AnyTimes()
	second := mocks.NewMockStream(ctrl)
	second.EXPECT().Changes().Return((<-chan domain.Change)(secondChanges)).AnyTimes()
	second.EXPECT().Status().Return((<-chan domain.StreamStatus)(secondStatus)).AnyTimes()

	filter := ThreadScope("T1").Filter()
	gomock.InOrder(
		feedMock.EXPECT().Subscribe(gomock.Any(), filter).Return(first, nil),
		feedMock.EXPECT().Unsubscribe(first).Return(nil),
		feedMock.EXPECT().Subscribe(gomock.Any(), filter.Resume(7)).Return(nil, fmt.Errorf("still down")),
		feedMock.EXPECT().Subscribe(gomock.Any(), filter.Resume(7)).Return(second, nil),
		feedMock.EXPECT().Unsubscribe(second).Return(nil),
	)

	counter := &refreshCounter{}
	sub, err := manager.Open(context.Background(), ThreadScope("T1"), counter.refresh)
	req.NoError(err)

	// Given one change delivered on the first stream
	firstChanges <- domain.Change{Seq: 7, Table: domain.MessagesTable, Op: domain.ChangeInsert, ThreadID: "T1", RowID: "m7"}
	req.Eventually(func() bool { return counter.count() == 1 }, time.Second, 5*time.Millisecond)

	// When the feed reports a reconnection
	firstStatus <- domain.StreamReconnected

	// Then the subscription resubscribes from seq 7, retrying after a failure
	req.Eventually(func() bool { return sub.Reopens() == 1 }, time.Second, 5*time.Millisecond)
	req.Equal(int32(1), reported.Load())

	// And changes flow from the new stream
	secondChanges <- domain.Change{Seq: 8, Table: domain.MessagesTable, Op: domain.ChangeInsert, ThreadID: "T1", RowID: "m8"}
	req.Eventually(func() bool { return counter.count() == 2 }, time.Second, 5*time.Millisecond)

	sub.Close()
}

func TestSubscription_Reopen_Skips_Changes_Before_Open(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	counter := &refreshCounter{}

	// Given inserts committed and retained by the feed before the subscription exists
	f.hub.Notify(insertChange("T1", "old1"))
	f.hub.Notify(insertChange("T1", "old2"))
	sub, err := f.manager.Open(context.Background(), ThreadScope("T1"), counter.refresh)
	req.NoError(err)

	// When the transport drops before anything was delivered
	f.hub.Interrupt()
	req.Eventually(func() bool { return sub.Reopens() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Then the older inserts are not replayed
	req.Never(func() bool { return counter.count() > 0 }, 100*time.Millisecond, 5*time.Millisecond)

	// And an insert made after opening still arrives
	f.hub.Notify(insertChange("T1", "new1"))
	req.Eventually(func() bool { return counter.count() == 1 }, time.Second, 5*time.Millisecond)
	req.Equal([]string{"new1"}, counter.rowIDs())
}

func TestSubscription_Close_During_Reopen_Reports_Nothing(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	feedMock := mocks.NewMockChangeFeed(ctrl)
	bus := NewEventBus(log)
	manager := NewSubscriptionManager(log, feedMock, bus, 5*time.Millisecond)

	var reported atomic.Int32
	bus.Subscribe(event.ChatErrorType, func(context.Context, event.Event) error {
		reported.Add(1)
		return nil
	})

	changes, status := make(chan domain.Change), make(chan domain.StreamStatus, 1)
	stream := mocks.NewMockStream(ctrl)
	stream.EXPECT().StartSeq().Return(uint64(3)).AnyTimes()
	stream.EXPECT().Changes().Return((<-chan domain.Change)(changes)).AnyTimes()
	stream.EXPECT().Status().Return((<-chan domain.StreamStatus)(status)).AnyTimes()

	// Given a resubscription that blocks until its context is cancelled
	reopening := make(chan struct{})
	filter := ThreadScope("T1").Filter()
	feedMock.EXPECT().Subscribe(gomock.Any(), filter).Return(stream, nil)
	feedMock.EXPECT().Subscribe(gomock.Any(), filter.Resume(4)).
		DoAndReturn(func(ctx context.Context, _ domain.ChangeFilter) (contract.Stream, error) {
			close(reopening)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	feedMock.EXPECT().Unsubscribe(stream).Return(nil).Times(2)

	sub, err := manager.Open(context.Background(), ThreadScope("T1"), func(domain.Change) {})
	req.NoError(err)
	status <- domain.StreamReconnected
	<-reopening

	// When the subscription is closed while resubscribing
	sub.Close()

	// Then the aborted resubscription is not reported as an error
	req.Never(func() bool { return reported.Load() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	req.Equal(0, sub.Reopens())
	req.Equal(0, manager.Len())
}
