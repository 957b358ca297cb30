package domain

import (
	"market-chat/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipant_LastRead_Is_High_Water_Mark(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	p := NewParticipant("t1", "bob", now)
	t1 := now.Add(1 * time.Minute)
	t2 := now.Add(2 * time.Minute)

	// Given last read at T2
	req.True(p.AdvanceLastRead(t2))

	// When an older and an equal value arrive
	req.False(p.AdvanceLastRead(t1))
	req.False(p.AdvanceLastRead(t2))

	// Then T2 is kept
	req.Equal(t2, *p.LastReadAt)
}

func TestParticipant_LastRead_Equals_Maximum_Submitted(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	offsets := []int{5, 3, 9, 1, 9, 7}
	p := NewParticipant("t1", "bob", now)
	for _, o := range offsets {
		p.AdvanceLastRead(now.Add(time.Duration(o) * time.Second))
	}
	req.Equal(now.Add(9*time.Second), *p.LastReadAt)
}

func TestParticipant_SetMuted_Only_By_Owner(t *testing.T) {
	req := require.New(t)
	p := NewParticipant("t1", "bob", time.Now())

	req.ErrorIs(p.SetMuted("alice", true), errors.ErrForbidden)
	req.False(p.IsMuted)

	req.NoError(p.SetMuted("bob", true))
	req.True(p.IsMuted)
}

func TestCountUnread(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	p := NewParticipant("t1", "bob", now)
	p.AdvanceLastRead(now.Add(2 * time.Minute))

	deleted := NewMessage("m5", "t1", "alice", "oops", false, now.Add(5*time.Minute))
	deleted.SoftDelete(now.Add(6 * time.Minute))
	messages := []Message{
		NewMessage("m1", "t1", "alice", "one", false, now.Add(1*time.Minute)),
		NewMessage("m2", "t1", "alice", "two", false, now.Add(2*time.Minute)),
		NewMessage("m3", "t1", "alice", "three", false, now.Add(3*time.Minute)),
		NewMessage("m4", "t1", "bob", "mine", false, now.Add(4*time.Minute)),
		deleted,
	}

	req.Equal(1, CountUnread(p, messages))
}
