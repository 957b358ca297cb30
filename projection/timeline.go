// Package projection builds local timelines from what the store returns.
// Handles ordering and deduplication of re-read messages.
// Does not emit events or interact with UI directly.
package projection

import (
	"market-chat/domain"
	"sort"
	"sync"
)

// Timeline holds the local copy of one thread. Merging the same rows
// twice, as an at-least-once refresh will, leaves it unchanged.
type Timeline struct {
	ThreadID string

	mu       sync.Mutex
	byID     map[string]int
	messages []domain.Message
}

func NewTimeline(threadID string) *Timeline {
	return &Timeline{
		ThreadID: threadID,
		byID:     make(map[string]int),
	}
}

// Merge upserts messages by ID, so edits and deletions replace the local
// copy, and keeps the timeline in creation order. It returns the messages
// that were not known before.
func (t *Timeline) Merge(messages []domain.Message) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []domain.Message
	for _, m := range messages {
		if m.ThreadID != t.ThreadID {
			continue
		}
		if i, ok := t.byID[m.ID]; ok {
			t.messages[i] = m
			continue
		}
		t.byID[m.ID] = len(t.messages)
		t.messages = append(t.messages, m)
		fresh = append(fresh, m)
	}
	if len(fresh) > 0 {
		t.reorder()
	}
	return fresh
}

func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Message(nil), t.messages...)
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *Timeline) reorder() {
	sort.SliceStable(t.messages, func(i, j int) bool {
		a, b := t.messages[i], t.messages[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	for i, m := range t.messages {
		t.byID[m.ID] = i
	}
}
