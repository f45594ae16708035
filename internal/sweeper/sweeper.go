// Package sweeper periodically evicts expired sessions.
package sweeper

import (
	"context"
	"log"
	"sync"
	"time"
)

const DefaultInterval = 30 * time.Second

// Expirer evicts every expired session and reports how many it removed.
type Expirer interface {
	ExpireSessions() int
}

type Sweeper struct {
	exp      Expirer
	interval time.Duration
	done     chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	lastTick  time.Time
}

func New(exp Expirer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{exp: exp, interval: interval, done: make(chan struct{})}
}

// Run ticks until ctx is cancelled. Done is closed when it returns.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.done)
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	log.Printf("[sweeper] started interval=%s", s.interval)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sweeper] stopped")
			return
		case <-t.C:
			s.Tick()
		}
	}
}

// Tick runs one sweep synchronously.
func (s *Sweeper) Tick() (expired int) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metricPanics.Inc()
			log.Printf("[sweeper] pass panicked: %v", r)
		}
		metricTicks.Inc()
		metricTickDuration.Observe(time.Since(start).Seconds())
		s.mu.Lock()
		s.lastTick = time.Now()
		s.mu.Unlock()
	}()

	expired = s.exp.ExpireSessions()
	if expired > 0 {
		metricExpired.Add(float64(expired))
		log.Printf("[sweeper] expired %d session(s) in %s", expired, time.Since(start))
	}
	return expired
}

func (s *Sweeper) Done() <-chan struct{} { return s.done }

func (s *Sweeper) Interval() time.Duration { return s.interval }

// LastTick is zero until the first pass completes.
func (s *Sweeper) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// StartedAt is zero until Run is called.
func (s *Sweeper) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}
