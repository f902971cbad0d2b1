package events

import (
	"context"
	"encoding/json"
	"time"
)

// Domain event types.
const (
	TypeRequestSubmitted = "request.submitted"
	TypeRequestCancelled = "request.cancelled"
	TypeRequestDecided   = "request.decided"
	TypeRequestExpired   = "request.expired"
	TypeAccessRecorded   = "access.recorded"
)

// Event is the envelope published for every workflow transition.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher discards events. Used when publishing is disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
