package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// publishTimeout bounds a single downstream publish.
const publishTimeout = 5 * time.Second

var ErrQueueFull = errors.New("event queue full")

var metricEventDrops = promauto.NewCounter(prometheus.CounterOpts{
	Name: "events_dropped_total",
	Help: "Lifecycle events dropped because the async queue was full or closed",
})

// Async decouples callers from a slow sink. Events are forwarded by a single
// worker so their relative order is preserved.
type Async struct {
	sink  Sink
	queue chan Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(sink Sink, size int) *Async {
	if size <= 0 {
		size = 1024
	}
	a := &Async{sink: sink, queue: make(chan Event, size), done: make(chan struct{})}
	go a.run()
	return a
}

// Publish enqueues without blocking.
func (a *Async) Publish(_ context.Context, evt Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metricEventDrops.Inc()
		return ErrQueueFull
	}
	select {
	case a.queue <- evt:
		return nil
	default:
		metricEventDrops.Inc()
		log.Printf("[events] queue full, dropping %s session=%s", evt.Type, evt.SessionID)
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for evt := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := a.sink.Publish(ctx, evt); err != nil {
			log.Printf("[events] publish %s session=%s failed: %v", evt.Type, evt.SessionID, err)
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue and closes the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return a.sink.Close()
}
