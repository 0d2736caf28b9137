package history

import (
	"context"
	"time"
)

// EventType defines the kind of execution event.
type EventType string

const (
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
)

// Record summarizes one execution. It never carries output text: logs stay
// in their per-execution files.
type Record struct {
	ID         string        `json:"id"`
	Project    string        `json:"project"`
	Branch     string        `json:"branch"`
	Tag        string        `json:"tag,omitempty"`
	Steps      int           `json:"steps"`
	ExitStatus int           `json:"exit_status"`
	Success    bool          `json:"success"`
	Duration   time.Duration `json:"duration"`
}

// Event represents an execution event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
