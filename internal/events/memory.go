package events

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxEventsPerSession = 200
	DefaultMaxSessions         = 1024
)

// Memory keeps a capped per-session event log for inspection over HTTP.
type Memory struct {
	mu          sync.RWMutex
	bySess      map[string][]Event
	order       []string
	maxEvents   int
	maxSessions int
}

func NewMemory(maxEvents, maxSessions int) *Memory {
	if maxEvents <= 1 {
		maxEvents = DefaultMaxEventsPerSession
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Memory{
		bySess:      make(map[string][]Event),
		maxEvents:   maxEvents,
		maxSessions: maxSessions,
	}
}

func (m *Memory) Publish(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.bySess[evt.SessionID]; !seen {
		if len(m.order) >= m.maxSessions {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.bySess, oldest)
		}
		m.order = append(m.order, evt.SessionID)
	}
	entries := append(m.bySess[evt.SessionID], evt)
	if l := len(entries); l > m.maxEvents {
		// Keep space for a single truncation marker so the total stays at maxEvents
		keep := m.maxEvents - 1
		dropped := l - keep
		entries = append([]Event(nil), entries[l-keep:]...)
		entries = append(entries, Event{
			ID:        evt.ID + "-truncated",
			SessionID: evt.SessionID,
			Type:      "events_truncated",
			Timestamp: time.Now().UTC(),
			Payload:   map[string]any{"dropped": dropped, "kept": keep},
		})
	}
	m.bySess[evt.SessionID] = entries
	return nil
}

// List returns a copy of the events recorded for a session.
func (m *Memory) List(sessionID string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.bySess[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

func (m *Memory) Close() error { return nil }
