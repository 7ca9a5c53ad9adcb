package progress

import (
	"sync"
	"sync/atomic"

	"github.com/alnah/minutesgen/internal/metrics"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 64

// Hub fans events out to subscribers. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewHub creates a Hub with the given per-subscriber buffer size.
// A non-positive size uses the default of 64.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The returned function unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber that has room.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
			metrics.ProgressEventsDroppedTotal.Inc()
		}
	}
}

// Func returns a Func publishing into the hub.
func (h *Hub) Func() Func {
	return h.Publish
}

// Dropped returns the number of events dropped so far.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel. Later subscribers receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
