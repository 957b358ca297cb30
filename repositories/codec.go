package repositories

import (
	"fmt"
	"market-chat/domain"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored as protobuf wire format, written field by field.
// Zero values are omitted, unknown fields are skipped on read so records
// stay readable when fields are added.

const (
	fieldThreadID protowire.Number = iota + 1
	fieldThreadType
	fieldThreadListingID
	fieldThreadCreatorID
	fieldThreadCreatedAt
	fieldThreadUpdatedAt
	fieldThreadLastMessageAt
)

const (
	fieldParticipantThreadID protowire.Number = iota + 1
	fieldParticipantUserID
	fieldParticipantJoinedAt
	fieldParticipantLastReadAt
	fieldParticipantIsMuted
)

const (
	fieldMessageID protowire.Number = iota + 1
	fieldMessageThreadID
	fieldMessageSenderID
	fieldMessageContent
	fieldMessageStatus
	fieldMessageIsSystem
	fieldMessageCreatedAt
	fieldMessageEditedAt
	fieldMessageDeletedAt
)

const (
	fieldProfileID protowire.Number = iota + 1
	fieldProfileUsername
	fieldProfileFullName
	fieldProfileAvatarURL
)

func encodeThread(t domain.Thread) []byte {
	var b []byte
	b = appendString(b, fieldThreadID, t.ID)
	b = appendString(b, fieldThreadType, string(t.Type))
	b = appendStringPtr(b, fieldThreadListingID, t.ListingID)
	b = appendString(b, fieldThreadCreatorID, t.CreatorID)
	b = appendTime(b, fieldThreadCreatedAt, t.CreatedAt)
	b = appendTime(b, fieldThreadUpdatedAt, t.UpdatedAt)
	b = appendTimePtr(b, fieldThreadLastMessageAt, t.LastMessageAt)
	return b
}

func decodeThread(b []byte) (domain.Thread, error) {
	var t domain.Thread
	err := walk(b, func(f field) {
		switch f.num {
		case fieldThreadID:
			t.ID = f.string()
		case fieldThreadType:
			t.Type = domain.ThreadType(f.string())
		case fieldThreadListingID:
			t.ListingID = f.stringPtr()
		case fieldThreadCreatorID:
			t.CreatorID = f.string()
		case fieldThreadCreatedAt:
			t.CreatedAt = f.time()
		case fieldThreadUpdatedAt:
			t.UpdatedAt = f.time()
		case fieldThreadLastMessageAt:
			t.LastMessageAt = f.timePtr()
		}
	})
	return t, err
}

func encodeParticipant(p domain.Participant) []byte {
	var b []byte
	b = appendString(b, fieldParticipantThreadID, p.ThreadID)
	b = appendString(b, fieldParticipantUserID, p.UserID)
	b = appendTime(b, fieldParticipantJoinedAt, p.JoinedAt)
	b = appendTimePtr(b, fieldParticipantLastReadAt, p.LastReadAt)
	b = appendBool(b, fieldParticipantIsMuted, p.IsMuted)
	return b
}

func decodeParticipant(b []byte) (domain.Participant, error) {
	var p domain.Participant
	err := walk(b, func(f field) {
		switch f.num {
		case fieldParticipantThreadID:
			p.ThreadID = f.string()
		case fieldParticipantUserID:
			p.UserID = f.string()
		case fieldParticipantJoinedAt:
			p.JoinedAt = f.time()
		case fieldParticipantLastReadAt:
			p.LastReadAt = f.timePtr()
		case fieldParticipantIsMuted:
			p.IsMuted = f.bool()
		}
	})
	return p, err
}

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, fieldMessageID, m.ID)
	b = appendString(b, fieldMessageThreadID, m.ThreadID)
	b = appendString(b, fieldMessageSenderID, m.SenderID)
	b = appendString(b, fieldMessageContent, m.Content)
	b = appendVarint(b, fieldMessageStatus, uint64(m.Status))
	b = appendBool(b, fieldMessageIsSystem, m.IsSystem)
	b = appendTime(b, fieldMessageCreatedAt, m.CreatedAt)
	b = appendTimePtr(b, fieldMessageEditedAt, m.EditedAt)
	b = appendTimePtr(b, fieldMessageDeletedAt, m.DeletedAt)
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := walk(b, func(f field) {
		switch f.num {
		case fieldMessageID:
			m.ID = f.string()
		case fieldMessageThreadID:
			m.ThreadID = f.string()
		case fieldMessageSenderID:
			m.SenderID = f.string()
		case fieldMessageContent:
			m.Content = f.string()
		case fieldMessageStatus:
			m.Status = domain.MessageStatus(f.varint)
		case fieldMessageIsSystem:
			m.IsSystem = f.bool()
		case fieldMessageCreatedAt:
			m.CreatedAt = f.time()
		case fieldMessageEditedAt:
			m.EditedAt = f.timePtr()
		case fieldMessageDeletedAt:
			m.DeletedAt = f.timePtr()
		}
	})
	return m, err
}

func encodeProfile(p domain.UserProfile) []byte {
	var b []byte
	b = appendString(b, fieldProfileID, p.ID)
	b = appendStringPtr(b, fieldProfileUsername, p.Username)
	b = appendStringPtr(b, fieldProfileFullName, p.FullName)
	b = appendStringPtr(b, fieldProfileAvatarURL, p.AvatarURL)
	return b
}

func decodeProfile(b []byte) (domain.UserProfile, error) {
	var p domain.UserProfile
	err := walk(b, func(f field) {
		switch f.num {
		case fieldProfileID:
			p.ID = f.string()
		case fieldProfileUsername:
			p.Username = f.stringPtr()
		case fieldProfileFullName:
			p.FullName = f.stringPtr()
		case fieldProfileAvatarURL:
			p.AvatarURL = f.stringPtr()
		}
	})
	return p, err
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendStringPtr writes a present but empty string too, so nil and "" survive a round trip.
func appendStringPtr(b []byte, num protowire.Number, v *string) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixNano()))
}

func appendTimePtr(b []byte, num protowire.Number, t *time.Time) []byte {
	if t == nil {
		return b
	}
	return appendTime(b, num, *t)
}

type field struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

func (f field) string() string {
	return string(f.bytes)
}

func (f field) stringPtr() *string {
	s := string(f.bytes)
	return &s
}

func (f field) bool() bool {
	return protowire.DecodeBool(f.varint)
}

func (f field) time() time.Time {
	return time.Unix(0, protowire.DecodeZigZag(f.varint)).UTC()
}

func (f field) timePtr() *time.Time {
	t := f.time()
	return &t
}

func walk(b []byte, visit func(f field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decoding record tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("decoding field %d: %w", num, protowire.ParseError(n))
			}
			f.varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("decoding field %d: %w", num, protowire.ParseError(n))
			}
			f.bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("skipping field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		visit(f)
	}
	return nil
}
