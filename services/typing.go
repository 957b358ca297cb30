package services

import (
	"context"
	"market-chat/domain/event"
	"market-chat/runtime"
	"sort"
	"sync"
	"time"
)

type typingKey struct {
	threadID string
	userID   string
}

type typingBurst struct {
	timer    *time.Timer
	deadline time.Time
}

// TypingTracker turns keystroke pings into typing-start/typing-end pairs.
// A burst starts on the first ping and ends on Stop, on a sent message or
// after timeout without a ping.
type TypingTracker struct {
	bus     *runtime.EventBus
	timeout time.Duration

	mu     sync.Mutex
	bursts map[typingKey]*typingBurst
}

func NewTypingTracker(bus *runtime.EventBus, timeout time.Duration) *TypingTracker {
	return &TypingTracker{
		bus:     bus,
		timeout: timeout,
		bursts:  make(map[typingKey]*typingBurst),
	}
}

// Start publishes typing-start for a new burst and re-arms the idle timer
// for an ongoing one.
func (t *TypingTracker) Start(ctx context.Context, threadID, userID string) {
	key := typingKey{threadID: threadID, userID: userID}

	t.mu.Lock()
	if burst, ok := t.bursts[key]; ok {
		burst.deadline = time.Now().Add(t.timeout)
		burst.timer.Reset(t.timeout)
		t.mu.Unlock()
		return
	}
	burst := &typingBurst{deadline: time.Now().Add(t.timeout)}
	burst.timer = time.AfterFunc(t.timeout, func() { t.expire(key, burst) })
	t.bursts[key] = burst
	t.mu.Unlock()

	t.bus.Publish(ctx, event.TypingStartType, event.Typing{ThreadID: threadID, UserID: userID})
}

// Stop ends the burst. It does nothing when the user was not typing.
func (t *TypingTracker) Stop(ctx context.Context, threadID, userID string) {
	key := typingKey{threadID: threadID, userID: userID}

	t.mu.Lock()
	burst, ok := t.bursts[key]
	if ok {
		burst.timer.Stop()
		delete(t.bursts, key)
	}
	t.mu.Unlock()

	if ok {
		t.bus.Publish(ctx, event.TypingEndType, event.Typing{ThreadID: threadID, UserID: userID})
	}
}

// Typing lists the users currently typing in threadID, sorted.
func (t *TypingTracker) Typing(threadID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var users []string
	for key := range t.bursts {
		if key.threadID == threadID {
			users = append(users, key.userID)
		}
	}
	sort.Strings(users)
	return users
}

// Close stops every pending timer without publishing typing-end.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, burst := range t.bursts {
		burst.timer.Stop()
		delete(t.bursts, key)
	}
}

// expire may race with a re-arm; a burst whose deadline moved is left alone
// since its timer fires again.
func (t *TypingTracker) expire(key typingKey, burst *typingBurst) {
	t.mu.Lock()
	current, ok := t.bursts[key]
	if !ok || current != burst || time.Now().Before(burst.deadline) {
		t.mu.Unlock()
		return
	}
	delete(t.bursts, key)
	t.mu.Unlock()

	t.bus.Publish(context.Background(), event.TypingEndType, event.Typing{ThreadID: key.threadID, UserID: key.userID})
}
