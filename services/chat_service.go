package services

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	"market-chat/runtime"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// SystemSenderID is the sender recorded on system messages.
const SystemSenderID = "system"

type IChatService interface {
	CreateThread(ctx context.Context, cmd domain.CreateThreadCommand) (domain.Thread, error)
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	SendSystemMessage(ctx context.Context, threadID, content string) (domain.Message, error)
	EditMessage(ctx context.Context, cmd domain.EditMessageCommand) (domain.Message, error)
	DeleteMessage(ctx context.Context, messageID string) (domain.Message, error)
	MarkDelivered(ctx context.Context, messageID string) (domain.Message, error)
	MarkThreadRead(ctx context.Context, cmd domain.MarkReadCommand) (domain.Participant, error)
	SetMuted(ctx context.Context, cmd domain.SetMutedCommand) (domain.Participant, error)
	UnreadCount(ctx context.Context, threadID string) (int, error)
	LoadThread(ctx context.Context, threadID string) (ThreadView, error)
	StartTyping(ctx context.Context, threadID string) error
	StopTyping(ctx context.Context, threadID string) error
}

// ThreadView is everything a client needs to render one conversation.
type ThreadView struct {
	Thread       domain.Thread
	Participants []domain.Participant
	Messages     []domain.Message
	Profiles     map[string]domain.UserProfile
	Unread       int
	Typing       []string
}

// ChatService coordinates the store, the event bus and typing state on
// behalf of the user carried by the context.
type ChatService struct {
	log              *slog.Logger
	store            contract.MessageStore
	bus              *runtime.EventBus
	typing           *TypingTracker
	validator        *validator.Validate
	maxContentLength int
}

func NewChatService(log *slog.Logger, store contract.MessageStore, bus *runtime.EventBus, typing *TypingTracker, maxContentLength int) *ChatService {
	return &ChatService{
		log:              log,
		store:            store,
		bus:              bus,
		typing:           typing,
		validator:        validator.New(),
		maxContentLength: maxContentLength,
	}
}

// CreateThread opens a thread for the caller and the listed participants.
// A direct thread needs exactly one other participant.
func (s *ChatService) CreateThread(ctx context.Context, cmd domain.CreateThreadCommand) (domain.Thread, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return domain.Thread{}, err
	}
	if err := s.validate(cmd); err != nil {
		return domain.Thread{}, err
	}
	members := lo.Uniq(append([]string{actorID}, cmd.Participants...))
	if cmd.Type == domain.ThreadDirect && len(members) != 2 {
		return domain.Thread{}, fmt.Errorf("direct thread with %d participants: %w", len(members), errors.ErrInvalidThread)
	}

	thread, err := s.store.CreateThread(ctx, domain.Thread{
		Type:      cmd.Type,
		ListingID: cmd.ListingID,
		CreatorID: actorID,
	})
	if err != nil {
		return domain.Thread{}, err
	}
	for _, userID := range members {
		if _, err := s.store.AddParticipant(ctx, thread.ID, userID); err != nil {
			return domain.Thread{}, err
		}
	}
	s.log.Debug("Thread created", "thread_id", thread.ID, "type", thread.Type, "participants", len(members))
	return thread, nil
}

// SendMessage stores the caller's message, ends their typing burst and
// publishes message-sent. Failures are also published as chat-error.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	message, err := s.send(ctx, cmd, actorID)
	if err != nil {
		s.reportError(ctx, "send", cmd.ThreadID, err)
		return domain.Message{}, err
	}
	s.typing.Stop(ctx, cmd.ThreadID, actorID)
	s.bus.Publish(ctx, event.MessageSentType, event.MessageSent{
		MessageID: message.ID,
		ThreadID:  message.ThreadID,
		SenderID:  message.SenderID,
		CreatedAt: message.CreatedAt,
	})
	return message, nil
}

func (s *ChatService) send(ctx context.Context, cmd domain.SendMessageCommand, actorID string) (domain.Message, error) {
	if err := s.validate(cmd); err != nil {
		return domain.Message{}, err
	}
	if s.maxContentLength > 0 && len(cmd.Content) > s.maxContentLength {
		return domain.Message{}, fmt.Errorf("content of %d bytes exceeds %d: %w", len(cmd.Content), s.maxContentLength, errors.ErrInvalidPayload)
	}
	if err := s.requireParticipant(ctx, cmd.ThreadID, actorID); err != nil {
		return domain.Message{}, err
	}
	return s.store.InsertMessage(ctx, cmd.ThreadID, actorID, cmd.Content, false)
}

// SendSystemMessage records an automated notice, born with the read status.
func (s *ChatService) SendSystemMessage(ctx context.Context, threadID, content string) (domain.Message, error) {
	message, err := s.store.InsertMessage(ctx, threadID, SystemSenderID, content, true)
	if err != nil {
		s.reportError(ctx, "send-system", threadID, err)
		return domain.Message{}, err
	}
	s.bus.Publish(ctx, event.MessageSentType, event.MessageSent{
		MessageID: message.ID,
		ThreadID:  message.ThreadID,
		SenderID:  message.SenderID,
		CreatedAt: message.CreatedAt,
	})
	return message, nil
}

// EditMessage lets the sender rewrite their own message.
func (s *ChatService) EditMessage(ctx context.Context, cmd domain.EditMessageCommand) (domain.Message, error) {
	if err := s.validate(cmd); err != nil {
		return domain.Message{}, err
	}
	if _, err := s.ownMessage(ctx, cmd.MessageID); err != nil {
		return domain.Message{}, err
	}
	return s.store.SetEdited(ctx, cmd.MessageID, cmd.Content)
}

func (s *ChatService) DeleteMessage(ctx context.Context, messageID string) (domain.Message, error) {
	if _, err := s.ownMessage(ctx, messageID); err != nil {
		return domain.Message{}, err
	}
	return s.store.SoftDelete(ctx, messageID)
}

// MarkDelivered is called by a recipient's client once the message reached
// it. Senders acknowledging their own message are ignored.
func (s *ChatService) MarkDelivered(ctx context.Context, messageID string) (domain.Message, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.requireParticipant(ctx, message.ThreadID, actorID); err != nil {
		return domain.Message{}, err
	}
	if message.SenderID == actorID {
		return message, nil
	}
	return s.store.UpdateMessageStatus(ctx, messageID, domain.StatusDelivered)
}

// MarkThreadRead moves the caller's read mark to cmd.At and marks every
// message from other senders up to that mark as read.
func (s *ChatService) MarkThreadRead(ctx context.Context, cmd domain.MarkReadCommand) (domain.Participant, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return domain.Participant{}, err
	}
	if err := s.validate(cmd); err != nil {
		return domain.Participant{}, err
	}
	participant, err := s.store.UpdateLastRead(ctx, cmd.ThreadID, actorID, cmd.At)
	if err != nil {
		return domain.Participant{}, err
	}
	messages, err := s.store.ListMessages(ctx, cmd.ThreadID)
	if err != nil {
		return domain.Participant{}, err
	}
	pending := lo.Filter(messages, func(m domain.Message, _ int) bool {
		return m.SenderID != actorID && participant.HasRead(m.CreatedAt) && m.CanAdvanceTo(domain.StatusRead)
	})
	for _, m := range pending {
		if _, err := s.store.UpdateMessageStatus(ctx, m.ID, domain.StatusRead); err != nil {
			return domain.Participant{}, err
		}
	}
	return participant, nil
}

func (s *ChatService) SetMuted(ctx context.Context, cmd domain.SetMutedCommand) (domain.Participant, error) {
	if err := s.validate(cmd); err != nil {
		return domain.Participant{}, err
	}
	return s.store.SetMuted(ctx, cmd.ThreadID, cmd.UserID, cmd.Muted)
}

func (s *ChatService) UnreadCount(ctx context.Context, threadID string) (int, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return 0, err
	}
	participant, err := s.participant(ctx, threadID, actorID)
	if err != nil {
		return 0, err
	}
	messages, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return 0, err
	}
	return domain.CountUnread(participant, messages), nil
}

// LoadThread is the read path behind a refresh: thread, members, messages
// and the profiles of everyone involved.
func (s *ChatService) LoadThread(ctx context.Context, threadID string) (ThreadView, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return ThreadView{}, err
	}
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return ThreadView{}, err
	}
	participants, err := s.store.ListParticipants(ctx, threadID)
	if err != nil {
		return ThreadView{}, err
	}
	me, ok := lo.Find(participants, func(p domain.Participant) bool { return p.UserID == actorID })
	if !ok {
		return ThreadView{}, fmt.Errorf("%s in thread %s: %w", actorID, threadID, errors.ErrNotParticipant)
	}
	messages, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return ThreadView{}, err
	}
	userIDs := append(
		lo.Map(participants, func(p domain.Participant, _ int) string { return p.UserID }),
		lo.Map(messages, func(m domain.Message, _ int) string { return m.SenderID })...,
	)
	profiles, err := s.store.GetProfiles(ctx, userIDs)
	if err != nil {
		return ThreadView{}, err
	}
	return ThreadView{
		Thread:       thread,
		Participants: participants,
		Messages:     messages,
		Profiles:     profiles,
		Unread:       domain.CountUnread(me, messages),
		Typing:       lo.Without(s.typing.Typing(threadID), actorID),
	}, nil
}

func (s *ChatService) StartTyping(ctx context.Context, threadID string) error {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, threadID, actorID); err != nil {
		return err
	}
	s.typing.Start(ctx, threadID, actorID)
	return nil
}

func (s *ChatService) StopTyping(ctx context.Context, threadID string) error {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	s.typing.Stop(ctx, threadID, actorID)
	return nil
}

func (s *ChatService) validate(cmd any) error {
	if err := s.validator.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	return nil
}

func (s *ChatService) participant(ctx context.Context, threadID, userID string) (domain.Participant, error) {
	participants, err := s.store.ListParticipants(ctx, threadID)
	if err != nil {
		return domain.Participant{}, err
	}
	p, ok := lo.Find(participants, func(p domain.Participant) bool { return p.UserID == userID })
	if !ok {
		return domain.Participant{}, fmt.Errorf("%s in thread %s: %w", userID, threadID, errors.ErrNotParticipant)
	}
	return p, nil
}

func (s *ChatService) requireParticipant(ctx context.Context, threadID, userID string) error {
	_, err := s.participant(ctx, threadID, userID)
	return err
}

// ownMessage loads messageID and checks the caller sent it.
func (s *ChatService) ownMessage(ctx context.Context, messageID string) (domain.Message, error) {
	actorID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if message.SenderID != actorID {
		return domain.Message{}, fmt.Errorf("message %s belongs to %s: %w", messageID, message.SenderID, errors.ErrForbidden)
	}
	return message, nil
}

func (s *ChatService) reportError(ctx context.Context, op, threadID string, err error) {
	s.log.Warn("Chat operation failed", "op", op, "thread_id", threadID, "error", err)
	s.bus.Publish(ctx, event.ChatErrorType, event.ChatError{Op: op, ThreadID: threadID, Err: err})
}
