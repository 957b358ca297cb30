package services

import (
	"context"
	"log/slog"
	"market-chat/domain/event"
	"market-chat/runtime"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu     sync.Mutex
	events []event.Name
}

func (r *typingRecorder) listen(_ context.Context, evt event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt.Name)
	return nil
}

func (r *typingRecorder) names() []event.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Name(nil), r.events...)
}

func newTypingFixture(t *testing.T, timeout time.Duration) (*TypingTracker, *typingRecorder) {
	bus := runtime.NewEventBus(logs.GetLoggerFromLevel(slog.LevelError))
	recorder := &typingRecorder{}
	bus.Subscribe(event.TypingStartType, recorder.listen)
	bus.Subscribe(event.TypingEndType, recorder.listen)
	tracker := NewTypingTracker(bus, timeout)
	t.Cleanup(tracker.Close)
	return tracker, recorder
}

func TestTypingTracker_Burst_Publishes_Start_Once(t *testing.T) {
	req := require.New(t)
	tracker, recorder := newTypingFixture(t, time.Minute)
	ctx := context.Background()

	// Given: Several keystrokes in a row
	tracker.Start(ctx, "T1", "alice")
	tracker.Start(ctx, "T1", "alice")
	tracker.Start(ctx, "T1", "alice")

	// When: The user stops typing
	tracker.Stop(ctx, "T1", "alice")
	tracker.Stop(ctx, "T1", "alice")

	// Then: Exactly one start and one end were published
	req.Equal([]event.Name{event.TypingStartType, event.TypingEndType}, recorder.names())
	req.Empty(tracker.Typing("T1"))
}

func TestTypingTracker_Idle_Timeout_Ends_Burst(t *testing.T) {
	req := require.New(t)
	tracker, recorder := newTypingFixture(t, 30*time.Millisecond)

	tracker.Start(context.Background(), "T1", "alice")
	req.Equal([]string{"alice"}, tracker.Typing("T1"))

	req.Eventually(func() bool {
		return len(recorder.names()) == 2
	}, time.Second, 5*time.Millisecond)
	req.Equal([]event.Name{event.TypingStartType, event.TypingEndType}, recorder.names())
	req.Empty(tracker.Typing("T1"))
}

func TestTypingTracker_Keystrokes_Keep_Burst_Alive(t *testing.T) {
	req := require.New(t)
	tracker, recorder := newTypingFixture(t, 60*time.Millisecond)
	ctx := context.Background()

	// Given: Keystrokes more frequent than the timeout
	for range 5 {
		tracker.Start(ctx, "T1", "alice")
		time.Sleep(20 * time.Millisecond)
	}

	// Then: The burst is still open
	req.Equal([]event.Name{event.TypingStartType}, recorder.names())
	req.Equal([]string{"alice"}, tracker.Typing("T1"))
}

func TestTypingTracker_Users_And_Threads_Are_Independent(t *testing.T) {
	req := require.New(t)
	tracker, recorder := newTypingFixture(t, time.Minute)
	ctx := context.Background()

	tracker.Start(ctx, "T1", "bob")
	tracker.Start(ctx, "T1", "alice")
	tracker.Start(ctx, "T2", "alice")
	tracker.Stop(ctx, "T2", "alice")

	req.Equal([]string{"alice", "bob"}, tracker.Typing("T1"))
	req.Empty(tracker.Typing("T2"))
	req.Len(recorder.names(), 4)
}
