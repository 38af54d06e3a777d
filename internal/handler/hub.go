package handler

import (
	"sync"
	"sync/atomic"

	"github.com/PipeOpsHQ/hookscope/internal/store"
)

const defaultTailBuffer = 32

// Hub fans delivery summaries out to live tail subscribers. Publish never
// blocks; a subscriber whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan store.Summary]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultTailBuffer
	}
	return &Hub{
		clients: make(map[chan store.Summary]struct{}),
		buffer:  buffer,
	}
}

// Subscribe registers a new subscriber. The returned func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan store.Summary, func()) {
	ch := make(chan store.Summary, h.buffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// Close ends every subscription. Later subscribers get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *Hub) Publish(s store.Summary) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- s:
		default:
			h.dropped.Add(1)
		}
	}
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
