package sqlstore

import (
	"market-chat/domain"
	"time"
)

// The store owns every timestamp, so gorm's automatic time tracking is off.
// Timestamps are also kept as unix nanoseconds so ordering and the
// forward-only comparisons never depend on how the driver formats times.

type threadRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	Type          string    `gorm:"size:16;not null"`
	ListingID     *string   `gorm:"size:64;index"`
	CreatorID     string    `gorm:"size:64;not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
	LastMessageAt *time.Time
}

func (threadRow) TableName() string { return "threads" }

type participantRow struct {
	ThreadID      string `gorm:"primaryKey;size:64"`
	UserID        string `gorm:"primaryKey;size:64;index"`
	JoinedAt      time.Time
	LastReadAt    *time.Time
	LastReadNanos *int64
	IsMuted       bool
}

func (participantRow) TableName() string { return "participants" }

type messageRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	ThreadID       string `gorm:"size:64;not null;index:idx_thread_created"`
	SenderID       string `gorm:"size:64;not null"`
	Content        string `gorm:"type:text"`
	Status         int    `gorm:"not null"`
	IsSystem       bool
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	CreatedAtNanos int64     `gorm:"not null;index:idx_thread_created"`
	EditedAt       *time.Time
	DeletedAt      *time.Time
}

func (messageRow) TableName() string { return "messages" }

type profileRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Username  *string
	FullName  *string
	AvatarURL *string
}

func (profileRow) TableName() string { return "profiles" }

func allModels() []any {
	return []any{&threadRow{}, &participantRow{}, &messageRow{}, &profileRow{}}
}

func fromThread(t domain.Thread) threadRow {
	return threadRow{
		ID:            t.ID,
		Type:          string(t.Type),
		ListingID:     t.ListingID,
		CreatorID:     t.CreatorID,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		LastMessageAt: t.LastMessageAt,
	}
}

func (r threadRow) toDomain() domain.Thread {
	return domain.Thread{
		ID:            r.ID,
		Type:          domain.ThreadType(r.Type),
		ListingID:     r.ListingID,
		CreatorID:     r.CreatorID,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		LastMessageAt: utcPtr(r.LastMessageAt),
	}
}

func fromParticipant(p domain.Participant) participantRow {
	row := participantRow{
		ThreadID:   p.ThreadID,
		UserID:     p.UserID,
		JoinedAt:   p.JoinedAt,
		LastReadAt: p.LastReadAt,
		IsMuted:    p.IsMuted,
	}
	if p.LastReadAt != nil {
		nanos := p.LastReadAt.UnixNano()
		row.LastReadNanos = &nanos
	}
	return row
}

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ThreadID:   r.ThreadID,
		UserID:     r.UserID,
		JoinedAt:   r.JoinedAt.UTC(),
		LastReadAt: utcPtr(r.LastReadAt),
		IsMuted:    r.IsMuted,
	}
}

func fromMessage(m domain.Message) messageRow {
	return messageRow{
		ID:             m.ID,
		ThreadID:       m.ThreadID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Status:         int(m.Status),
		IsSystem:       m.IsSystem,
		CreatedAt:      m.CreatedAt,
		CreatedAtNanos: m.CreatedAt.UnixNano(),
		EditedAt:       m.EditedAt,
		DeletedAt:      m.DeletedAt,
	}
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		Status:    domain.MessageStatus(r.Status),
		IsSystem:  r.IsSystem,
		CreatedAt: r.CreatedAt.UTC(),
		EditedAt:  utcPtr(r.EditedAt),
		DeletedAt: utcPtr(r.DeletedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
