// Package feed is an in-process change feed fed by the message stores.
//
// Delivery is at-least-once: a stream whose transport drops stops receiving
// live changes and reports StreamReconnected once its connection worker has
// been restarted by the supervisor. The consumer then subscribes again with
// a FromSeq cursor and the hub replays the retained changes at or above it,
// which may repeat changes the consumer already saw.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Hub struct {
	log        *slog.Logger
	supervisor contract.ISupervisor
	bufferSize int
	clock      func() time.Time

	mu      sync.Mutex
	seq     uint64
	history []domain.Change
	streams map[string]*stream
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub keeps the last bufferSize changes for replay. Each stream buffers
// as many, so a replay never blocks.
func NewHub(log *slog.Logger, supervisor contract.ISupervisor, bufferSize int) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		supervisor: supervisor,
		bufferSize: max(bufferSize, 1),
		clock:      time.Now,
		streams:    make(map[string]*stream),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Notify records a committed change and pushes it to every live matching
// stream. A stream whose buffer is full loses its transport.
func (h *Hub) Notify(change domain.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.seq++
	change.Seq = h.seq
	if change.CommittedAt.IsZero() {
		change.CommittedAt = h.clock()
	}
	h.history = append(h.history, change)
	if len(h.history) > h.bufferSize {
		h.history = h.history[len(h.history)-h.bufferSize:]
	}

	for _, s := range h.streams {
		if !s.live || !s.filter.Matches(change) {
			continue
		}
		select {
		case s.changes <- change:
		default:
			h.log.Warn("feed stream buffer full, dropping transport", "stream_id", s.id, "filter", s.filter.String())
			h.dropLocked(s)
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context, filter domain.ChangeFilter) (contract.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", filter, err)
	}
	if filter.Table == "" || filter.Op == "" {
		return nil, fmt.Errorf("subscribing to %s: table and operation are required", filter)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.ErrFeedClosed
	}

	streamCtx, cancel := context.WithCancel(h.ctx)
	s := &stream{
		id:       uuid.NewString(),
		filter:   filter,
		startSeq: h.seq,
		changes:  make(chan domain.Change, h.bufferSize),
		status:   make(chan domain.StreamStatus, 1),
		lost:     make(chan struct{}, 1),
		live:     true,
		cancel:   cancel,
	}
	if filter.FromSeq > 0 {
		replay := lo.Filter(h.history, func(c domain.Change, _ int) bool {
			return c.Seq >= filter.FromSeq && filter.Matches(c)
		})
		for _, c := range replay {
			s.changes <- c
		}
		h.log.Debug("feed replay", "stream_id", s.id, "from_seq", filter.FromSeq, "count", len(replay))
	}
	h.streams[s.id] = s
	h.supervisor.Start(streamCtx, &connection{stream: s, log: h.log})
	return s, nil
}

// Unsubscribe releases the stream. Unknown or already released streams are ignored.
func (h *Hub) Unsubscribe(cs contract.Stream) error {
	s, ok := cs.(*stream)
	if !ok {
		return fmt.Errorf("unsubscribing: foreign stream %T", cs)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[s.id]; !ok {
		return nil
	}
	delete(h.streams, s.id)
	s.live = false
	s.cancel()
	return nil
}

// Interrupt drops the transport of every open stream, as a network failure would.
func (h *Hub) Interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.streams {
		h.dropLocked(s)
	}
}

// Len is the number of registered streams.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// LastSeq is the sequence of the most recent change.
func (h *Hub) LastSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.streams {
		s.live = false
		s.cancel()
		delete(h.streams, id)
	}
	h.cancel()
}

func (h *Hub) dropLocked(s *stream) {
	if !s.live {
		return
	}
	s.live = false
	select {
	case s.lost <- struct{}{}:
	default:
	}
}
