package store

import (
	"errors"
	"sync"
	"time"

	"swiftdrop/server/internal/joincode"
	"swiftdrop/server/internal/types"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrAlreadyInSession   = errors.New("connection already in a session")
	ErrCodeSpaceExhausted = errors.New("no free session code")
	ErrInvalidFile        = errors.New("invalid file metadata")
)

const (
	DefaultTTL             = 10 * time.Minute
	DefaultMaxCodeAttempts = 16
)

// Store owns sessions and devices. Both collections and their indexes are
// guarded by one lock so membership and device records never disagree.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	byCode   map[string]string
	devices  map[string]*types.Device
	byConn   map[types.Conn]string

	ttl          time.Duration
	now          func() time.Time
	codes        func() string
	codeAttempts int
}

type session struct {
	types.Session
	devices map[string]struct{}
	files   []types.FileMetadata
}

type Option func(*Store)

func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithCodeGenerator(gen func() string) Option {
	return func(s *Store) { s.codes = gen }
}

func WithMaxCodeAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		sessions:     make(map[string]*session),
		byCode:       make(map[string]string),
		devices:      make(map[string]*types.Device),
		byConn:       make(map[types.Conn]string),
		ttl:          DefaultTTL,
		now:          func() time.Time { return time.Now().UTC() },
		codes:        joincode.Generate,
		codeAttempts: DefaultMaxCodeAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stats is the read-only status snapshot served by the health endpoint.
type Stats struct {
	Sessions int `json:"sessions"`
	Devices  int `json:"devices"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Sessions: len(s.sessions), Devices: len(s.devices)}
}
