package event

import (
	"time"
)

// Name identifies a kind of event on the bus. It is an open namespace:
// new kinds only need a new constant.
type Name string

const (
	MessageSentType     Name = "message-sent"
	MessageReceivedType Name = "message-received"
	TypingStartType     Name = "typing-start"
	TypingEndType       Name = "typing-end"
	ChatErrorType       Name = "chat-error"
)

type Event struct {
	Name    Name
	Payload any
	At      time.Time
}

// MessageSent is published by the sender's process once the store accepted the message.
type MessageSent struct {
	MessageID string
	ThreadID  string
	SenderID  string
	CreatedAt time.Time
}

// MessageReceived is a refresh hint derived from a change feed insert.
// It may be delivered more than once for the same MessageID.
type MessageReceived struct {
	MessageID   string
	ThreadID    string
	Seq         uint64
	CommittedAt time.Time
}

type Typing struct {
	ThreadID string
	UserID   string
}

type ChatError struct {
	Op       string
	ThreadID string
	Err      error
}
