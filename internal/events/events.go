// Package events publishes job lifecycle transitions for downstream consumers.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeStarted   = "started"
	TypeCompleted = "completed"
	TypeFailed    = "failed"
)

// Event is one job lifecycle transition.
type Event struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	ClientID   string    `json:"client_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ResultKey  string    `json:"result_key,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
