package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lexdesk/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	defaultWorkers        = 2
	defaultQueueSize      = 256
	defaultHandlerTimeout = 10 * time.Second
)

// queuedEvent carries an event and the context it was published with
type queuedEvent struct {
	ctx   context.Context
	event shared.DomainEvent
}

// InMemoryEventBus implements EventBus with in-process pub/sub.
// Before Start and after Stop, events are dispatched on the publishing
// goroutine. While running, events are handed to a worker pool and Publish
// never blocks: an event arriving at a full queue is dropped and logged.
// Handler failures are logged, never returned.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	wildcard []shared.EventHandler

	// lifecycle guards queue against sends after close
	lifecycle sync.RWMutex
	queue     chan queuedEvent
	running   atomic.Bool
	wg        sync.WaitGroup
	dropped   atomic.Int64

	workers        int
	queueSize      int
	handlerTimeout time.Duration
	logger         *zap.Logger
}

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithWorkers sets the number of dispatch goroutines
func WithWorkers(n int) BusOption {
	return func(b *InMemoryEventBus) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueSize sets the buffered queue capacity
func WithQueueSize(n int) BusOption {
	return func(b *InMemoryEventBus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithHandlerTimeout bounds each handler invocation
func WithHandlerTimeout(d time.Duration) BusOption {
	return func(b *InMemoryEventBus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InMemoryEventBus{
		handlers:       make(map[string][]shared.EventHandler),
		workers:        defaultWorkers,
		queueSize:      defaultQueueSize,
		handlerTimeout: defaultHandlerTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish hands events to the handlers subscribed to their type
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		if event == nil {
			continue
		}
		if b.enqueue(ctx, event) {
			continue
		}
		b.dispatch(ctx, event)
	}
	return nil
}

// enqueue reports whether the running worker pool took charge of the event,
// either queueing it or dropping it on a full queue
func (b *InMemoryEventBus) enqueue(ctx context.Context, event shared.DomainEvent) bool {
	b.lifecycle.RLock()
	defer b.lifecycle.RUnlock()

	if !b.running.Load() {
		return false
	}
	select {
	case b.queue <- queuedEvent{ctx: ctx, event: event}:
		return true
	default:
		b.dropped.Add(1)
		b.logger.Error("event queue full, dropping event",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.Int("queue_size", b.queueSize),
		)
		return true
	}
}

// Dropped returns how many events were discarded on a full queue
func (b *InMemoryEventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribe registers a handler for specific event types.
// With no types given, the handler's own EventTypes are used; an empty list
// there subscribes it to every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(eventTypes) == 0 {
		b.wildcard = append(b.wildcard, handler)
	}
	for _, eventType := range eventTypes {
		b.handlers[eventType] = append(b.handlers[eventType], handler)
	}

	b.logger.Debug("handler subscribed",
		zap.String("handler", fmt.Sprintf("%T", handler)),
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler from every event type
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, handlers := range b.handlers {
		kept := without(handlers, handler)
		if len(kept) == 0 {
			delete(b.handlers, eventType)
			continue
		}
		b.handlers[eventType] = kept
	}
	b.wildcard = without(b.wildcard, handler)

	b.logger.Debug("handler unsubscribed", zap.String("handler", fmt.Sprintf("%T", handler)))
}

func without(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	kept := make([]shared.EventHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != target {
			kept = append(kept, h)
		}
	}
	return kept
}

// handlersFor returns a snapshot of the handlers for an event type
func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := b.handlers[eventType]
	result := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	result = append(result, typed...)
	result = append(result, b.wildcard...)
	return result
}

// Start launches the worker pool
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.running.Load() {
		return nil
	}

	b.queue = make(chan queuedEvent, b.queueSize)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(b.queue)
	}
	b.running.Store(true)

	b.logger.Info("event bus started",
		zap.Int("workers", b.workers),
		zap.Int("queue_size", b.queueSize),
	)
	return nil
}

// Stop closes the queue and waits for queued events to drain
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.lifecycle.Lock()
	if !b.running.Load() {
		b.lifecycle.Unlock()
		return nil
	}
	b.running.Store(false)
	close(b.queue)
	b.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out before queue drained", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Running reports whether the worker pool is active
func (b *InMemoryEventBus) Running() bool {
	return b.running.Load()
}

func (b *InMemoryEventBus) worker(queue <-chan queuedEvent) {
	defer b.wg.Done()
	for item := range queue {
		b.dispatch(item.ctx, item.event)
	}
}

// dispatch delivers an event to each handler in turn.
// Handlers run detached from the publisher's cancellation: the request that
// produced the event has usually finished by the time they run.
func (b *InMemoryEventBus) dispatch(ctx context.Context, event shared.DomainEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	base := context.WithoutCancel(ctx)

	for _, handler := range b.handlersFor(event.EventType()) {
		hctx, cancel := context.WithTimeout(base, b.handlerTimeout)
		err := b.dispatchToHandler(hctx, handler, event)
		cancel()
		if err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("handler", fmt.Sprintf("%T", handler)),
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.String("aggregate_id", event.AggregateID().String()),
				zap.Error(err),
			)
		}
	}
}

// dispatchToHandler runs one handler, converting a panic into an error
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Handle(ctx, event)
}

// Ensure InMemoryEventBus implements EventBus
var _ shared.EventBus = (*InMemoryEventBus)(nil)
