package timing

import (
	"context"
	"time"
)

type EventType string

const (
	EventEnqueued      EventType = "enqueued"
	EventStatusChanged EventType = "status_changed"
)

// Event describes one applied mutation.
type Event struct {
	Type     EventType
	Record   Record
	Previous Status   // empty for EventEnqueued
	Reranked []Record // orders that moved up because Record left the queue
	At       time.Time
}

// Notifier is told about each persisted mutation, after the engine lock is
// released. Implementations must not call back into the engine synchronously.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}
