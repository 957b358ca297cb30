// Package domain contains core concepts of the chat system.
// This file defines Message entities and the delivery status state machine.
// Status only ever moves forward; deleted messages keep their content on disk
// but never expose it through Visible.
package domain

import (
	"market-chat/errors"
	"time"
)

// MessageStatus is ordered: a greater value is further along the lifecycle.
type MessageStatus int

const (
	StatusSent MessageStatus = iota + 1
	StatusDelivered
	StatusRead
)

func (s MessageStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

func (s MessageStatus) Valid() bool {
	return s >= StatusSent && s <= StatusRead
}

func ParseMessageStatus(str string) (MessageStatus, error) {
	switch str {
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "read":
		return StatusRead, nil
	}
	return 0, errors.ErrUnknownStatus
}

type Message struct {
	ID        string
	ThreadID  string
	SenderID  string
	Content   string
	Status    MessageStatus
	IsSystem  bool
	CreatedAt time.Time
	EditedAt  *time.Time
	DeletedAt *time.Time
}

// NewMessage builds a freshly sent message. System messages start as read.
func NewMessage(id, threadID, senderID, content string, isSystem bool, at time.Time) Message {
	status := StatusSent
	if isSystem {
		status = StatusRead
	}
	return Message{
		ID:        id,
		ThreadID:  threadID,
		SenderID:  senderID,
		Content:   content,
		Status:    status,
		IsSystem:  isSystem,
		CreatedAt: at,
	}
}

func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// EffectiveStatus is the status readers should see.
func (m Message) EffectiveStatus() MessageStatus {
	if m.IsSystem {
		return StatusRead
	}
	return m.Status
}

// CanAdvanceTo reports whether moving to next would change the message.
func (m Message) CanAdvanceTo(next MessageStatus) bool {
	if m.IsSystem || m.IsDeleted() || !next.Valid() {
		return false
	}
	return next > m.Status
}

// AdvanceStatus applies next only if it moves the status forward.
// It returns false when the request was a no-op.
func (m *Message) AdvanceStatus(next MessageStatus) bool {
	if !m.CanAdvanceTo(next) {
		return false
	}
	m.Status = next
	return true
}

// Edit overwrites content and EditedAt. Status is untouched.
func (m *Message) Edit(content string, at time.Time) error {
	if m.IsDeleted() {
		return errors.ErrMessageDeleted
	}
	m.Content = content
	m.EditedAt = &at
	return nil
}

// SoftDelete stamps DeletedAt once. Later calls keep the first timestamp.
func (m *Message) SoftDelete(at time.Time) bool {
	if m.IsDeleted() {
		return false
	}
	m.DeletedAt = &at
	return true
}

// Visible returns the copy exposed on normal read paths.
func (m Message) Visible() Message {
	if m.IsDeleted() {
		m.Content = ""
	}
	m.Status = m.EffectiveStatus()
	return m
}
