package history

import (
	"context"
	"time"
)

// Lifecycle event types.
const (
	EventStart   = "start"
	EventStop    = "stop"
	EventRestart = "restart"
	EventError   = "error"
	EventBackup  = "backup"
)

// Event is one lifecycle entry in the audit trail.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for lifecycle events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Event) error
	Close() error
}
