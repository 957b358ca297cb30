package domain

import (
	"fmt"
	"time"
)

const MessagesTable = "messages"

type ChangeOp string

const ChangeInsert ChangeOp = "INSERT"

// Change is one row notification pushed by the change feed.
// Seq is assigned by the feed and grows with commit order.
type Change struct {
	Seq         uint64
	Table       string
	Op          ChangeOp
	RowID       string
	ThreadID    string
	CommittedAt time.Time
}

// ChangeFilter selects the changes a stream receives. An empty ThreadID
// matches every thread. FromSeq asks the feed to replay retained changes
// with a sequence at or above it; zero means live changes only.
type ChangeFilter struct {
	Table    string
	Op       ChangeOp
	ThreadID string
	FromSeq  uint64
}

func (f ChangeFilter) Matches(c Change) bool {
	if f.Table != c.Table || f.Op != c.Op {
		return false
	}
	return f.ThreadID == "" || f.ThreadID == c.ThreadID
}

// Resume keeps the predicate and moves the replay start.
func (f ChangeFilter) Resume(seq uint64) ChangeFilter {
	f.FromSeq = seq
	return f
}

// SamePredicate compares filters ignoring the replay start.
func (f ChangeFilter) SamePredicate(o ChangeFilter) bool {
	return f.Table == o.Table && f.Op == o.Op && f.ThreadID == o.ThreadID
}

func (f ChangeFilter) String() string {
	if f.ThreadID == "" {
		return fmt.Sprintf("%s:%s", f.Table, f.Op)
	}
	return fmt.Sprintf("%s:%s:thread_id=eq.%s", f.Table, f.Op, f.ThreadID)
}

type StreamStatus int

const (
	StreamConnected StreamStatus = iota + 1
	StreamDisconnected
	// StreamReconnected means the transport is back but the server side
	// subscription is gone: the consumer has to subscribe again.
	StreamReconnected
)

func (s StreamStatus) String() string {
	switch s {
	case StreamConnected:
		return "connected"
	case StreamDisconnected:
		return "disconnected"
	case StreamReconnected:
		return "reconnected"
	}
	return "unknown"
}
