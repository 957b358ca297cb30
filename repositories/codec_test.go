package repositories

import (
	"market-chat/domain"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_Message_Keeps_Optional_Timestamps(t *testing.T) {
	req := require.New(t)
	at := time.Date(2025, 6, 1, 9, 30, 0, 42, time.UTC)

	// Given: An edited and deleted message
	m := domain.NewMessage("m-1", "t-1", "alice", "bye", false, at)
	m.Status = domain.StatusDelivered
	m.EditedAt = lo.ToPtr(at.Add(time.Minute))
	m.DeletedAt = lo.ToPtr(at.Add(time.Hour))

	// When: Encoding then decoding it
	decoded, err := decodeMessage(encodeMessage(m))

	// Then: Nothing is lost
	req.NoError(err)
	req.Equal(m, decoded)
}

func TestCodec_Profile_Distinguishes_Nil_And_Empty(t *testing.T) {
	req := require.New(t)
	p := domain.UserProfile{ID: "bob", Username: lo.ToPtr(""), AvatarURL: nil}

	decoded, err := decodeProfile(encodeProfile(p))

	req.NoError(err)
	req.NotNil(decoded.Username)
	req.Empty(*decoded.Username)
	req.Nil(decoded.FullName)
	req.Nil(decoded.AvatarURL)
}

func TestCodec_Skips_Unknown_Fields(t *testing.T) {
	req := require.New(t)

	// Given: A record written by a newer version carrying an extra fixed32 field
	b := encodeThread(domain.Thread{ID: "t-1", Type: domain.ThreadGroup, CreatorID: "alice"})
	b = protowire.AppendTag(b, 99, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)

	// When: Decoding it
	thread, err := decodeThread(b)

	// Then: Known fields are read and the extra one ignored
	req.NoError(err)
	req.Equal("t-1", thread.ID)
	req.Equal(domain.ThreadGroup, thread.Type)
}

func TestCodec_Truncated_Record_Fails(t *testing.T) {
	req := require.New(t)
	b := encodeParticipant(domain.NewParticipant("t-1", "bob", time.Now()))

	_, err := decodeParticipant(b[:len(b)-1])

	req.Error(err)
}
