package main

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/feed"
	"market-chat/internal"
	"market-chat/repositories"
	"market-chat/repositories/sqlstore"
	"market-chat/runtime"
	"market-chat/runtime/workers"
	"market-chat/services"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the messaging subsystem and drives it from a line console until
// stdin closes or the process is signalled.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Change feed, supervised
	sup := workers.NewSupervisor(log, config.FeedRestartInterval)
	hub := feed.NewHub(log, sup, config.FeedBufferSize)
	defer func() {
		hub.Close()
		sup.Stop()
	}()

	// 3. Store
	store, closeStore, err := openStore(config, log, hub)
	if err != nil {
		return err
	}
	defer closeStore()

	// 4. Event bus & handlers
	bus := runtime.NewEventBus(log)
	counter := event.NewCounter()
	bus.SubscribeHandler(event.MessageSentType, event.NewMessageSentHandler(log, counter))
	bus.SubscribeHandler(event.MessageReceivedType, event.NewLatencyHandler(log, config.LatencyThreshold))
	bus.SubscribeHandler(event.ChatErrorType, event.NewChatErrorHandler(log, counter))

	// 5. Subscriptions & service
	manager := runtime.NewSubscriptionManager(log, hub, bus, config.ReopenInterval)
	defer manager.CloseAll()
	typing := services.NewTypingTracker(bus, config.TypingTimeout)
	defer typing.Close()
	service := services.NewChatService(log, store, bus, typing, config.MaxContentLength)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup.Add(workers.NewTelemetryWorker(log, config.TelemetryInterval, map[string]workers.StatsProvider{
		"feed": func() map[string]any {
			return map[string]any{"streams": hub.Len(), "last_seq": hub.LastSeq()}
		},
		"subscriptions": func() map[string]any {
			return map[string]any{"open": manager.Len()}
		},
		"events": func() map[string]any {
			return map[string]any{
				"sent":   counter.Get(event.MessageSentType),
				"errors": counter.Get(event.ChatErrorType),
			}
		},
	}))
	go sup.Run(ctx)

	_, err = manager.Open(ctx, runtime.AllThreads(), func(change domain.Change) {
		log.Debug("Thread changed", "thread_id", change.ThreadID, "message_id", change.RowID, "seq", change.Seq)
	}, runtime.WithBusPublication())
	if err != nil {
		return fmt.Errorf("global subscription failed: %w", err)
	}

	// 6. Console
	lister, _ := store.(threadLister)
	console := newConsole(service, lister, manager, bus, os.Stdout)
	log.Info("Chat started", "driver", config.StoreDriver)
	if err := console.Serve(ctx, os.Stdin); err != nil {
		return err
	}

	log.Info("Program stopped cleanly", "messages_sent", counter.Get(event.MessageSentType))
	return nil
}

func openStore(config internal.Config, log *slog.Logger, notifier contract.ChangeNotifier) (contract.MessageStore, func(), error) {
	switch config.StoreDriver {
	case internal.DriverSQLite:
		db, err := sqlstore.OpenSQLite(config.SQLiteFilepath)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			log.Info("Closing SQLite...")
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return sqlstore.NewSQLStore(db, log, sqlstore.WithNotifier(notifier)), closeDB, nil
	default:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		closeDB := func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}
		return repositories.NewBadgerStore(db, log, repositories.WithNotifier(notifier)), closeDB, nil
	}
}
