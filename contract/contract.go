//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"market-chat/domain"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName returns the worker's own name when it has one, otherwise
// the type name found by reflection. Used for logging by the supervisor.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	if named, ok := w.(interface{ GetName() WorkerName }); ok && named.GetName() != "" {
		return string(named.GetName())
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageStore owns every persisted row. Status and LastReadAt updates are
// compare-and-set inside the store: backward moves are silently ignored and
// the current row is returned. Read paths never expose deleted content.
type MessageStore interface {
	CreateThread(ctx context.Context, thread domain.Thread) (domain.Thread, error)
	GetThread(ctx context.Context, threadID string) (domain.Thread, error)
	AddParticipant(ctx context.Context, threadID, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, threadID string) ([]domain.Participant, error)
	ListMessages(ctx context.Context, threadID string) ([]domain.Message, error)
	GetMessage(ctx context.Context, messageID string) (domain.Message, error)
	InsertMessage(ctx context.Context, threadID, senderID, content string, isSystem bool) (domain.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status domain.MessageStatus) (domain.Message, error)
	SetEdited(ctx context.Context, messageID, content string) (domain.Message, error)
	SoftDelete(ctx context.Context, messageID string) (domain.Message, error)
	// UpdateLastRead and SetMuted only touch the acting user's own row.
	UpdateLastRead(ctx context.Context, threadID, userID string, at time.Time) (domain.Participant, error)
	SetMuted(ctx context.Context, threadID, userID string, muted bool) (domain.Participant, error)
	PutProfile(ctx context.Context, profile domain.UserProfile) error
	GetProfiles(ctx context.Context, userIDs []string) (map[string]domain.UserProfile, error)
}

// ChangeNotifier receives committed inserts from a store.
type ChangeNotifier interface {
	Notify(change domain.Change)
}

// ChangeFeed is an at-least-once stream of row insertions.
type ChangeFeed interface {
	Subscribe(ctx context.Context, filter domain.ChangeFilter) (Stream, error)
	Unsubscribe(stream Stream) error
}

type Stream interface {
	ID() string
	Filter() domain.ChangeFilter
	// StartSeq is the feed sequence at the moment the stream was opened.
	// Live changes on the stream are all above it.
	StartSeq() uint64
	Changes() <-chan domain.Change
	Status() <-chan domain.StreamStatus
}
