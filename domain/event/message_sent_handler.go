package event

import (
	"log/slog"
	"market-chat/errors"
)

// MessageSentHandler handles events when a message is sent.
// It is triggered each time a participant sends a message to a thread.
// Useful for updating observability metrics, logging, or telemetry.
type MessageSentHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewMessageSentHandler(log *slog.Logger, counter *Counter) *MessageSentHandler {
	return &MessageSentHandler{log: log, counter: counter}
}

func (p *MessageSentHandler) Handle(event Event) {
	switch event.Name {
	case MessageSentType:
		payload, ok := event.Payload.(MessageSent)
		if !ok {
			p.log.Error(errors.ErrInvalidPayload.Error(), "event", event.Name)
			return
		}
		p.counter.Increment(MessageSentType)
		p.log.Debug("message sent", "thread_id", payload.ThreadID, "message_id", payload.MessageID)
	}
}
