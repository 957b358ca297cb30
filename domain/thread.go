package domain

import (
	"fmt"
	"market-chat/errors"
	"time"
)

type ThreadType string

const (
	ThreadDirect  ThreadType = "direct"
	ThreadGroup   ThreadType = "group"
	ThreadListing ThreadType = "listing"
)

func (t ThreadType) Valid() bool {
	switch t {
	case ThreadDirect, ThreadGroup, ThreadListing:
		return true
	}
	return false
}

type Thread struct {
	ID            string
	Type          ThreadType
	ListingID     *string
	CreatorID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessageAt *time.Time
}

// Validate checks the listing reference invariant.
func (t Thread) Validate() error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", errors.ErrInvalidThread, t.Type)
	}
	if t.CreatorID == "" {
		return fmt.Errorf("%w: creator is required", errors.ErrInvalidThread)
	}
	if t.Type == ThreadListing && (t.ListingID == nil || *t.ListingID == "") {
		return fmt.Errorf("%w: listing thread without listing reference", errors.ErrInvalidThread)
	}
	return nil
}

// Touch records activity from a message inserted at at.
func (t *Thread) Touch(at time.Time) {
	if at.After(t.UpdatedAt) {
		t.UpdatedAt = at
	}
	if t.LastMessageAt == nil || at.After(*t.LastMessageAt) {
		t.LastMessageAt = &at
	}
}

type UserProfile struct {
	ID        string
	Username  *string
	FullName  *string
	AvatarURL *string
}

// DisplayName picks the best available label for rendering.
func (u UserProfile) DisplayName() string {
	switch {
	case u.FullName != nil && *u.FullName != "":
		return *u.FullName
	case u.Username != nil && *u.Username != "":
		return *u.Username
	}
	return u.ID
}
