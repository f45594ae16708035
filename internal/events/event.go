package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types.
const (
	SessionCreated = "session_created"
	DeviceJoined   = "device_joined"
	DeviceLeft     = "device_left"
	FilePublished  = "file_published"
	SessionExpired = "session_expired"
	SessionClosed  = "session_closed"
)

type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func New(sessionID, typ string, payload map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Sink receives session lifecycle events.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
func (Discard) Close() error                         { return nil }
