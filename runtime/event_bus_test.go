package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/domain/event"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestEventBus_Publish_In_Registration_Order(t *testing.T) {
	req := require.New(t)
	bus := NewEventBus(logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()

	var calls []string
	var payloads []any
	record := func(name string) Listener {
		return func(_ context.Context, evt event.Event) error {
			calls = append(calls, name)
			payloads = append(payloads, evt.Payload)
			return nil
		}
	}

	// Given A and B listening to message-sent
	bus.Subscribe(event.MessageSentType, record("A"))
	bus.Subscribe(event.MessageSentType, record("B"))

	// When one event is published
	payload := event.MessageSent{MessageID: "m1"}
	bus.Publish(ctx, event.MessageSentType, payload)

	// Then both got it once, A first
	req.Equal([]string{"A", "B"}, calls)
	req.Equal([]any{payload, payload}, payloads)
}

func TestEventBus_Unsubscribe_Isolation(t *testing.T) {
	req := require.New(t)
	bus := NewEventBus(logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()

	var a, b int
	regA := bus.Subscribe(event.TypingStartType, func(context.Context, event.Event) error { a++; return nil })
	bus.Subscribe(event.TypingStartType, func(context.Context, event.Event) error { b++; return nil })

	// When A unsubscribes, twice
	regA.Unsubscribe()
	regA.Unsubscribe()
	bus.Publish(ctx, event.TypingStartType, event.Typing{ThreadID: "T1", UserID: "alice"})

	// Then only B is invoked
	req.Equal(0, a)
	req.Equal(1, b)
	req.Equal(1, bus.Count(event.TypingStartType))
}

func TestEventBus_Same_Function_Registered_Twice(t *testing.T) {
	req := require.New(t)
	bus := NewEventBus(logs.GetLoggerFromLevel(slog.LevelDebug))

	count := 0
	listener := func(context.Context, event.Event) error { count++; return nil }
	first := bus.Subscribe(event.TypingEndType, listener)
	bus.Subscribe(event.TypingEndType, listener)

	bus.Publish(context.Background(), event.TypingEndType, nil)
	req.Equal(2, count)

	first.Unsubscribe()
	bus.Publish(context.Background(), event.TypingEndType, nil)
	req.Equal(3, count)
}

func TestEventBus_Failing_Listener_Is_Isolated(t *testing.T) {
	req := require.New(t)
	bus := NewEventBus(logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()

	var after int
	bus.Subscribe(event.ChatErrorType, func(context.Context, event.Event) error {
		return fmt.Errorf("listener failure")
	})
	bus.Subscribe(event.ChatErrorType, func(context.Context, event.Event) error {
		panic("listener panic")
	})
	bus.Subscribe(event.ChatErrorType, func(context.Context, event.Event) error {
		after++
		return nil
	})

	// When publishing twice
	req.NotPanics(func() {
		bus.Publish(ctx, event.ChatErrorType, event.ChatError{Op: "send"})
		bus.Publish(ctx, event.ChatErrorType, event.ChatError{Op: "send"})
	})

	// Then the healthy listener ran both times
	req.Equal(2, after)
}

func TestEventBus_Unknown_Event_Names_Are_Accepted(t *testing.T) {
	req := require.New(t)
	bus := NewEventBus(logs.GetLoggerFromLevel(slog.LevelDebug))
	custom := event.Name("reaction-added")

	var got any
	bus.Subscribe(custom, func(_ context.Context, evt event.Event) error {
		got = evt.Payload
		return nil
	})
	bus.Publish(context.Background(), custom, "👍")
	bus.Publish(context.Background(), "nobody-listens", nil)

	req.Equal("👍", got)
}

func TestEventBus_Subscribe_From_Listener(t *testing.T) {
	req := require.New(t)
	bus := NewEventBus(logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()

	late := 0
	bus.Subscribe(event.MessageSentType, func(context.Context, event.Event) error {
		bus.Subscribe(event.MessageSentType, func(context.Context, event.Event) error {
			late++
			return nil
		})
		return nil
	})

	// When the first publish registers a new listener
	bus.Publish(ctx, event.MessageSentType, nil)

	// Then it only sees the next publish
	req.Equal(0, late)
	bus.Publish(ctx, event.MessageSentType, nil)
	req.Equal(1, late)
}

func TestEventBus_Concurrent_Registration(t *testing.T) {
	req := require.New(t)
	bus := NewEventBus(logs.GetLoggerFromLevel(slog.LevelDebug))
	ctx := context.Background()

	var invoked atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg := bus.Subscribe(event.MessageReceivedType, func(context.Context, event.Event) error {
				invoked.Add(1)
				return nil
			})
			bus.Publish(ctx, event.MessageReceivedType, nil)
			reg.Unsubscribe()
		}()
	}
	wg.Wait()

	req.Equal(0, bus.Count(event.MessageReceivedType))
	req.GreaterOrEqual(invoked.Load(), int64(50))
}

func TestEventBus_SubscribeHandler(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	bus := NewEventBus(log)
	counter := event.NewCounter()

	bus.SubscribeHandler(event.MessageSentType, event.NewMessageSentHandler(log, counter))
	bus.Publish(context.Background(), event.MessageSentType, event.MessageSent{MessageID: "m1"})

	req.Equal(uint64(1), counter.Get(event.MessageSentType))
}
