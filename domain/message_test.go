package domain

import (
	"market-chat/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessage_Status_Never_Moves_Backward(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("m1", "t1", "alice", "hello", false, time.Now())

	// Given a message marked as delivered
	req.True(msg.AdvanceStatus(StatusDelivered))

	// When trying to go back to sent
	applied := msg.AdvanceStatus(StatusSent)

	// Then nothing happens
	req.False(applied)
	req.Equal(StatusDelivered, msg.Status)
}

func TestMessage_Status_Is_Running_Maximum(t *testing.T) {
	req := require.New(t)
	sequences := [][]MessageStatus{
		{StatusRead, StatusSent, StatusDelivered},
		{StatusDelivered, StatusDelivered, StatusSent},
		{StatusSent, StatusDelivered, StatusRead, StatusDelivered},
		{StatusDelivered, StatusRead, StatusRead},
	}
	for _, seq := range sequences {
		msg := NewMessage("m1", "t1", "alice", "hello", false, time.Now())
		highest := msg.Status
		for _, next := range seq {
			msg.AdvanceStatus(next)
			highest = max(highest, next)
			req.Equal(highest, msg.Status)
		}
	}
}

func TestMessage_System_Messages_Are_Always_Read(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("m1", "t1", "", "alice joined", true, time.Now())

	req.Equal(StatusRead, msg.EffectiveStatus())
	req.False(msg.AdvanceStatus(StatusDelivered))
	req.Equal(StatusRead, msg.Visible().Status)
}

func TestMessage_SoftDelete_Freezes_Status_And_Hides_Content(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("m1", "t1", "alice", "hello", false, time.Now())
	msg.AdvanceStatus(StatusRead)

	// When the message is deleted
	deletedAt := time.Now()
	req.True(msg.SoftDelete(deletedAt))

	// Then the content is kept but never exposed
	visible := msg.Visible()
	req.Empty(visible.Content)
	req.Equal("hello", msg.Content)
	req.Equal(StatusRead, visible.Status)
	req.NotNil(visible.DeletedAt)

	// And a second delete keeps the first timestamp
	req.False(msg.SoftDelete(deletedAt.Add(time.Minute)))
	req.Equal(deletedAt, *msg.DeletedAt)
}

func TestMessage_Deleted_Status_Is_Frozen(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("m1", "t1", "alice", "hello", false, time.Now())
	msg.SoftDelete(time.Now())

	req.False(msg.AdvanceStatus(StatusRead))
	req.Equal(StatusSent, msg.Status)
}

func TestMessage_Edit_Does_Not_Touch_Status(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("m1", "t1", "alice", "hello", false, time.Now())
	msg.AdvanceStatus(StatusDelivered)

	first := time.Now()
	req.NoError(msg.Edit("hello!", first))
	second := first.Add(time.Second)
	req.NoError(msg.Edit("hello!!", second))

	req.Equal("hello!!", msg.Content)
	req.Equal(second, *msg.EditedAt)
	req.Equal(StatusDelivered, msg.Status)
}

func TestMessage_Edit_Deleted_Message_Is_Rejected(t *testing.T) {
	req := require.New(t)
	msg := NewMessage("m1", "t1", "alice", "hello", false, time.Now())
	msg.SoftDelete(time.Now())

	err := msg.Edit("again", time.Now())
	req.ErrorIs(err, errors.ErrMessageDeleted)
	req.Nil(msg.EditedAt)
}

func TestParseMessageStatus(t *testing.T) {
	req := require.New(t)
	for _, s := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		parsed, err := ParseMessageStatus(s.String())
		req.NoError(err)
		req.Equal(s, parsed)
	}
	_, err := ParseMessageStatus("seen")
	req.ErrorIs(err, errors.ErrUnknownStatus)
}
