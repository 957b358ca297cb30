// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"market-chat/errors"
	"time"
)

// Participant is keyed by (ThreadID, UserID).
type Participant struct {
	ThreadID   string
	UserID     string
	JoinedAt   time.Time
	LastReadAt *time.Time
	IsMuted    bool
}

func NewParticipant(threadID, userID string, joinedAt time.Time) Participant {
	return Participant{ThreadID: threadID, UserID: userID, JoinedAt: joinedAt}
}

// AdvanceLastRead is a high-water mark: at is applied only when strictly
// greater than the current value.
func (p *Participant) AdvanceLastRead(at time.Time) bool {
	if p.LastReadAt != nil && !at.After(*p.LastReadAt) {
		return false
	}
	p.LastReadAt = &at
	return true
}

// SetMuted only accepts changes issued by the participant itself.
func (p *Participant) SetMuted(actorID string, muted bool) error {
	if actorID != p.UserID {
		return errors.ErrForbidden
	}
	p.IsMuted = muted
	return nil
}

// HasRead reports whether a message created at createdAt is behind the mark.
func (p Participant) HasRead(createdAt time.Time) bool {
	return p.LastReadAt != nil && !createdAt.After(*p.LastReadAt)
}

// CountUnread counts messages created after the read mark, ignoring the
// participant's own messages and deleted ones.
func CountUnread(p Participant, messages []Message) int {
	count := 0
	for _, m := range messages {
		if m.SenderID == p.UserID || m.IsDeleted() {
			continue
		}
		if !p.HasRead(m.CreatedAt) {
			count++
		}
	}
	return count
}
