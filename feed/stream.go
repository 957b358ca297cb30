package feed

import (
	"context"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"
)

type stream struct {
	id       string
	filter   domain.ChangeFilter
	startSeq uint64
	changes  chan domain.Change
	status   chan domain.StreamStatus
	lost     chan struct{}
	cancel   context.CancelFunc

	// guarded by Hub.mu
	live bool
}

func (s *stream) ID() string                         { return s.id }
func (s *stream) Filter() domain.ChangeFilter        { return s.filter }
func (s *stream) StartSeq() uint64                   { return s.startSeq }
func (s *stream) Changes() <-chan domain.Change      { return s.changes }
func (s *stream) Status() <-chan domain.StreamStatus { return s.status }

func (s *stream) report(ctx context.Context, status domain.StreamStatus) {
	select {
	case s.status <- status:
	case <-ctx.Done():
	}
}

// connection is the transport of one stream, run under the supervisor.
// Losing the transport makes Run fail so the supervisor restarts it after
// its backoff; every restart is reported as StreamReconnected.
type connection struct {
	stream   *stream
	log      *slog.Logger
	attempts int
}

func (c *connection) GetName() contract.WorkerName {
	return contract.WorkerName("feed-connection:" + c.stream.id)
}

func (c *connection) Run(ctx context.Context) error {
	status := domain.StreamConnected
	if c.attempts > 0 {
		status = domain.StreamReconnected
	}
	c.attempts++
	c.stream.report(ctx, status)

	select {
	case <-ctx.Done():
		return nil
	case <-c.stream.lost:
		c.log.Debug("feed transport lost", "stream_id", c.stream.id)
		c.stream.report(ctx, domain.StreamDisconnected)
		return errors.ErrTransportLost
	}
}
