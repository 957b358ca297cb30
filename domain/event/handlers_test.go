package event

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestMessageSentHandler_Counts_Only_Valid_Payloads(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	counter := NewCounter()
	handler := NewMessageSentHandler(log, counter)

	handler.Handle(Event{Name: MessageSentType, Payload: MessageSent{MessageID: "m1"}})
	handler.Handle(Event{Name: MessageSentType, Payload: "garbage"})
	handler.Handle(Event{Name: TypingStartType, Payload: Typing{}})

	req.Equal(uint64(1), counter.Get(MessageSentType))
}

func TestChatErrorHandler_Counts_Per_Operation(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	counter := NewCounter()
	handler := NewChatErrorHandler(log, counter)

	handler.Handle(Event{Name: ChatErrorType, Payload: ChatError{Op: "send", Err: fmt.Errorf("boom")}})
	handler.Handle(Event{Name: ChatErrorType, Payload: ChatError{Op: "send", Err: fmt.Errorf("boom")}})
	handler.Handle(Event{Name: ChatErrorType, Payload: ChatError{Op: "reopen", Err: fmt.Errorf("boom")}})
	handler.Handle(Event{Name: ChatErrorType, Payload: 42})

	req.Equal(uint64(2), handler.CountFor("send"))
	req.Equal(uint64(1), handler.CountFor("reopen"))
	req.Equal(uint64(3), counter.Get(ChatErrorType))
}

func TestLatencyHandler_Ignores_Other_Payloads(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	handler := NewLatencyHandler(log, time.Millisecond)

	require.NotPanics(t, func() {
		handler.Handle(Event{Name: MessageReceivedType, At: time.Now(), Payload: MessageReceived{CommittedAt: time.Now().Add(-time.Second)}})
		handler.Handle(Event{Name: TypingEndType, Payload: Typing{}})
	})
}
