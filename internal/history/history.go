package history

import (
	"context"
	"time"
)

// Op identifies the lifecycle operation that produced an event.
type Op string

const (
	OpCreate Op = "create"
	OpStart  Op = "start"
	OpStop   Op = "stop"
	OpRemove Op = "remove"
)

// Event is an audit record of one group lifecycle operation.
type Event struct {
	Op         Op        `json:"op"`
	Group      string    `json:"group"`
	Name       string    `json:"name"`
	Status     string    `json:"status,omitempty"`
	OK         bool      `json:"ok"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
