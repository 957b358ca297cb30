package event

import (
	"fmt"
	"log/slog"
	"market-chat/errors"
	"sync"
)

// ChatErrorHandler keeps track of failures reported on the bus, per operation.
type ChatErrorHandler struct {
	log     *slog.Logger
	mu      sync.Mutex
	counter *Counter
	byOp    map[string]uint64
}

func NewChatErrorHandler(log *slog.Logger, counter *Counter) *ChatErrorHandler {
	return &ChatErrorHandler{log: log, counter: counter, byOp: make(map[string]uint64)}
}

func (h *ChatErrorHandler) Handle(event Event) {
	switch event.Name {
	case ChatErrorType:
		payload, ok := event.Payload.(ChatError)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error(), "event", event.Name)
			return
		}
		h.mu.Lock()
		h.byOp[payload.Op]++
		total := h.byOp[payload.Op]
		h.mu.Unlock()
		h.counter.Increment(ChatErrorType)
		h.log.Warn(fmt.Sprintf("chat error on %s, total: %d", payload.Op, total),
			"thread_id", payload.ThreadID, "error", payload.Err)
	}
}

func (h *ChatErrorHandler) CountFor(op string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byOp[op]
}
