package event

import (
	"log/slog"
	"time"
)

// LatencyHandler measures the delay between a store commit and the moment
// the change feed hint reaches the bus.
type LatencyHandler struct {
	log              *slog.Logger
	latencyThreshold time.Duration
}

func NewLatencyHandler(log *slog.Logger, latencyThreshold time.Duration) *LatencyHandler {
	return &LatencyHandler{log: log, latencyThreshold: latencyThreshold}
}

func (h *LatencyHandler) Handle(e Event) {
	if payload, ok := e.Payload.(MessageReceived); ok {
		leadTime := e.At.Sub(payload.CommittedAt)

		h.log.Debug("telemetry: feed latency",
			"thread_id", payload.ThreadID,
			"message_id", payload.MessageID,
			"lead_time_ms", leadTime.Milliseconds(),
		)

		if leadTime > h.latencyThreshold {
			h.log.Warn("high feed latency detected", "lead_time", leadTime, "seq", payload.Seq)
		}
	}
}
