package events

import (
	"sync"

	"refnet/internal/network/models"
)

// ringBuffer is a bounded FIFO of pending events. When full the oldest
// event is dropped.
type ringBuffer struct {
	mu       sync.Mutex
	events   []models.PromotionEvent
	head     int // next write
	tail     int // next read
	count    int
	dropped  int64
	notEmpty chan struct{}
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ringBuffer{
		events:   make([]models.PromotionEvent, capacity),
		notEmpty: make(chan struct{}, 1),
	}
}

func (b *ringBuffer) enqueue(event models.PromotionEvent) {
	b.mu.Lock()
	if b.count == len(b.events) {
		b.tail = (b.tail + 1) % len(b.events)
		b.count--
		b.dropped++
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % len(b.events)
	b.count++
	b.mu.Unlock()

	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
}

// dequeueBatch removes up to n events in FIFO order.
func (b *ringBuffer) dequeueBatch(n int) []models.PromotionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = min(n, b.count)
	if n == 0 {
		return nil
	}
	out := make([]models.PromotionEvent, n)
	for i := range n {
		out[i] = b.events[b.tail]
		b.tail = (b.tail + 1) % len(b.events)
	}
	b.count -= n
	return out
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
