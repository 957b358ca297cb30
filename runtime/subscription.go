package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scope selects which threads a subscription listens to.
type Scope struct {
	ThreadID string
}

func AllThreads() Scope {
	return Scope{}
}

func ThreadScope(threadID string) Scope {
	return Scope{ThreadID: threadID}
}

func (s Scope) IsGlobal() bool {
	return s.ThreadID == ""
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "all"
	}
	return "thread:" + s.ThreadID
}

// Filter is the change feed predicate for the scope: inserts on messages,
// restricted to one thread unless global.
func (s Scope) Filter() domain.ChangeFilter {
	return domain.ChangeFilter{
		Table:    domain.MessagesTable,
		Op:       domain.ChangeInsert,
		ThreadID: s.ThreadID,
	}
}

// RefreshFunc is a hint that the scope changed and should be re-read from
// the store. The same change can be delivered more than once.
type RefreshFunc func(change domain.Change)

type SubscriptionOption func(*Subscription)

// WithBusPublication also publishes every delivered change as message-received.
func WithBusPublication() SubscriptionOption {
	return func(s *Subscription) {
		s.publish = true
	}
}

// SubscriptionManager bridges the change feed to refresh callbacks and the
// event bus. Every subscription owns its own feed stream.
type SubscriptionManager struct {
	log            *slog.Logger
	feed           contract.ChangeFeed
	bus            *EventBus
	reopenInterval time.Duration

	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewSubscriptionManager(log *slog.Logger, feed contract.ChangeFeed, bus *EventBus, reopenInterval time.Duration) *SubscriptionManager {
	return &SubscriptionManager{
		log:            log,
		feed:           feed,
		bus:            bus,
		reopenInterval: reopenInterval,
		subs:           make(map[string]*Subscription),
	}
}

// Open subscribes to the feed for scope. It blocks while the feed
// connection is established; a failure leaves nothing registered.
// ctx only bounds the opening, its values are kept for bus publications.
func (m *SubscriptionManager) Open(ctx context.Context, scope Scope, refresh RefreshFunc, opts ...SubscriptionOption) (*Subscription, error) {
	filter := scope.Filter()
	stream, err := m.feed.Subscribe(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("opening %s subscription: %w", scope, err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		ID:      uuid.NewString(),
		Scope:   scope,
		filter:  filter,
		manager: m,
		refresh: refresh,
		ctx:     subCtx,
		cancel:  cancel,
		stream:  stream,
		openSeq: stream.StartSeq(),
	}
	for _, opt := range opts {
		opt(sub)
	}

	m.mu.Lock()
	m.subs[sub.ID] = sub
	m.mu.Unlock()

	m.log.Debug("subscription opened", "subscription_id", sub.ID, "filter", filter.String())
	go sub.pump(stream)
	return sub, nil
}

// Close is a shorthand for sub.Close.
func (m *SubscriptionManager) Close(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}

func (m *SubscriptionManager) CloseAll() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Len is the number of open subscriptions.
func (m *SubscriptionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *SubscriptionManager) forget(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, sub.ID)
}

func (m *SubscriptionManager) reportError(ctx context.Context, op, threadID string, err error) {
	m.log.Warn("subscription error", "op", op, "thread_id", threadID, "error", err)
	m.bus.Publish(ctx, event.ChatErrorType, event.ChatError{Op: op, ThreadID: threadID, Err: err})
}

// Subscription is one open feed subscription. It holds the live stream and
// the cursor of the last delivered change, used to resume after a reconnect.
type Subscription struct {
	ID    string
	Scope Scope

	filter  domain.ChangeFilter
	manager *SubscriptionManager
	refresh RefreshFunc
	publish bool
	ctx     context.Context
	cancel  context.CancelFunc

	// deliverMu is held while callbacks run; Close takes it to wait for them.
	deliverMu sync.Mutex

	mu        sync.Mutex
	stream    contract.Stream
	closed    bool
	openSeq   uint64
	lastSeq   uint64
	delivered uint64
	reopens   int
}

func (s *Subscription) Filter() domain.ChangeFilter {
	return s.filter
}

// Close releases the feed stream. It is idempotent and waits for an
// in-flight refresh to return: once Close returns the refresh callback is
// never invoked again. Calling Close from the subscription's own refresh
// callback deadlocks; use go sub.Close() there.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stream := s.stream
	s.mu.Unlock()

	// Barrier: an in-flight delivery either finishes now or sees closed.
	s.deliverMu.Lock()
	s.deliverMu.Unlock()

	s.cancel()
	if err := s.manager.feed.Unsubscribe(stream); err != nil {
		s.manager.log.Debug("releasing feed stream", "subscription_id", s.ID, "error", err)
	}
	s.manager.forget(s)
	s.manager.log.Debug("subscription closed", "subscription_id", s.ID)
}

func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Delivered counts refresh invocations, duplicates included.
func (s *Subscription) Delivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Reopens counts the resubscriptions done after feed reconnections.
func (s *Subscription) Reopens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reopens
}

func (s *Subscription) pump(stream contract.Stream) {
	changes, statuses := stream.Changes(), stream.Status()
	for {
		select {
		case <-s.ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.deliver(change)
		case status, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			switch status {
			case domain.StreamDisconnected:
				s.manager.log.Debug("feed disconnected", "subscription_id", s.ID)
			case domain.StreamReconnected:
				next, ok := s.reopen(stream)
				if !ok {
					return
				}
				stream = next
				changes, statuses = stream.Changes(), stream.Status()
			}
		}
	}
}

// deliver holds deliverMu so Close cannot return while a refresh is
// running, and a change arriving after Close is discarded.
func (s *Subscription) deliver(change domain.Change) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if change.Seq > s.lastSeq {
		s.lastSeq = change.Seq
	}
	s.delivered++
	s.mu.Unlock()

	s.safeRefresh(change)
	if s.publish {
		s.manager.bus.Publish(s.ctx, event.MessageReceivedType, event.MessageReceived{
			MessageID:   change.RowID,
			ThreadID:    change.ThreadID,
			Seq:         change.Seq,
			CommittedAt: change.CommittedAt,
		})
	}
}

func (s *Subscription) safeRefresh(change domain.Change) {
	if s.refresh == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.manager.log.Error("refresh callback panicked", "subscription_id", s.ID, "panic", fmt.Sprint(r))
		}
	}()
	s.refresh(change)
}

// reopen swaps the stale stream for a new one with the same predicate,
// resuming at the last delivered sequence, or just after the opening one
// when nothing was delivered yet. Changes retained by the feed since then
// are delivered again. It retries until it succeeds or the subscription is
// closed.
func (s *Subscription) reopen(stale contract.Stream) (contract.Stream, bool) {
	if err := s.manager.feed.Unsubscribe(stale); err != nil {
		s.manager.log.Debug("releasing stale feed stream", "subscription_id", s.ID, "error", err)
	}

	s.mu.Lock()
	filter := s.filter.Resume(max(s.lastSeq, s.openSeq+1))
	s.mu.Unlock()

	for {
		if s.ctx.Err() != nil {
			return nil, false
		}
		next, err := s.manager.feed.Subscribe(s.ctx, filter)
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				_ = s.manager.feed.Unsubscribe(next)
				return nil, false
			}
			s.stream = next
			s.reopens++
			s.mu.Unlock()
			s.manager.log.Debug("subscription reopened", "subscription_id", s.ID, "from_seq", filter.FromSeq)
			return next, true
		}
		if s.ctx.Err() != nil {
			return nil, false
		}

		s.manager.reportError(s.ctx, "reopen", s.Scope.ThreadID, err)
		select {
		case <-s.ctx.Done():
			return nil, false
		case <-time.After(s.manager.reopenInterval):
		}
	}
}
