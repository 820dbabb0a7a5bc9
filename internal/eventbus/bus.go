// Package eventbus routes heater events to subscribers through a bounded
// worker pool. Publishing never blocks the poll loop; a full queue drops the
// event instead of stalling a tick.
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType identifies the kind of event.
type EventType string

const (
	// EventTypeStateChanged fires when the fused state differs from the
	// previous tick's state.
	EventTypeStateChanged EventType = "state_changed"
	// EventTypeTickFailed fires when a poll tick could not produce a frame
	// or decode it.
	EventTypeTickFailed EventType = "tick_failed"
	// EventTypeCommandCompleted fires when an adjustment task finishes.
	EventTypeCommandCompleted EventType = "command_completed"
	// EventTypeCommandFailed fires when an adjustment task gives up.
	EventTypeCommandFailed EventType = "command_failed"
)

const (
	DefaultWorkerCount = 2
	DefaultQueueSize   = 64
)

// Event carries a type tag and an opaque payload.
type Event struct {
	Type EventType
	Data map[string]interface{}
}

// Handler consumes one event.
type Handler func(Event)

type work struct {
	event   Event
	handler Handler
}

// Bus fans events out to handlers on a fixed worker pool.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	workQueue chan work
	wg        sync.WaitGroup

	// Closing is signaled by channel close so publishers can detect
	// shutdown inside a select without racing a flag.
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bus with default pool sizing.
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a bus with a custom worker count and queue size.
func NewWithConfig(workerCount, queueSize int) *Bus {
	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
		closing:   make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish queues the event for every subscribed handler. Non-blocking: a
// full queue or a closing bus drops the event with a warning.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		select {
		case <-b.closing:
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
			return
		case b.workQueue <- work{event: event, handler: handler}:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Close drains the pool. Publishers are stopped first, then the queue is
// closed and workers are awaited up to the context deadline.
func (b *Bus) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		close(b.closing)
	})

	close(b.workQueue)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
