// Package events fans promotion events out to per-node subscribers and to
// process-wide sinks such as Kafka.
package events

import (
	"context"
	"log/slog"
	"sync"

	"refnet/internal/network/models"
)

// Handler receives promotion events for a subscribed node.
type Handler func(models.PromotionEvent)

// Sink receives every promotion event. Publish must not block the caller.
type Sink interface {
	Publish(ctx context.Context, event models.PromotionEvent)
}

// Bus is an in-process publisher. Subscriber handlers run synchronously on
// the publishing goroutine, so they should hand work off quickly.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[models.NodeID]map[uint64]Handler
	sinks  []Sink
	logger *slog.Logger
}

type Option func(*Bus)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func WithSink(s Sink) Option {
	return func(b *Bus) {
		b.sinks = append(b.sinks, s)
	}
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[models.NodeID]map[uint64]Handler),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for promotions of id and returns a func that
// removes it. Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(id models.NodeID, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	token := b.nextID
	if b.subs[id] == nil {
		b.subs[id] = make(map[uint64]Handler)
	}
	b.subs[id][token] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[id], token)
			if len(b.subs[id]) == 0 {
				delete(b.subs, id)
			}
		})
	}
}

// Subscribers returns the number of handlers registered for id.
func (b *Bus) Subscribers(id models.NodeID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[id])
}

func (b *Bus) Publish(ctx context.Context, event models.PromotionEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event.NodeID]))
	for _, h := range b.subs[event.NodeID] {
		handlers = append(handlers, h)
	}
	sinks := b.sinks
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, event)
	}
	for _, s := range sinks {
		s.Publish(ctx, event)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, event models.PromotionEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "promotion subscriber panicked",
				"node_id", event.NodeID.String(),
				"panic", r,
			)
		}
	}()
	h(event)
}
