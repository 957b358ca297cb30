package domain

import (
	"time"
)

type Command interface {
	Thread() string
}

type CreateThreadCommand struct {
	Type         ThreadType `validate:"required,oneof=direct group listing"`
	ListingID    *string
	Participants []string `validate:"dive,required"`
}

type SendMessageCommand struct {
	ThreadID string `validate:"required"`
	Content  string `validate:"required"`
}

func (c SendMessageCommand) Thread() string { return c.ThreadID }

type EditMessageCommand struct {
	MessageID string `validate:"required"`
	Content   string `validate:"required"`
}

type MarkReadCommand struct {
	ThreadID string    `validate:"required"`
	At       time.Time `validate:"required"`
}

func (c MarkReadCommand) Thread() string { return c.ThreadID }

type SetMutedCommand struct {
	ThreadID string `validate:"required"`
	UserID   string `validate:"required"`
	Muted    bool
}

func (c SetMutedCommand) Thread() string { return c.ThreadID }
