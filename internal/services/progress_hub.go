package services

import (
	"sync"

	"github.com/ourpurple/PDFOptimizer/internal/models"
)

// ProgressHub fans job progress events out to WebSocket subscribers.
type ProgressHub struct {
	mu          sync.RWMutex
	subscribers map[chan models.ProgressEvent]struct{}
	metrics     *Metrics
}

// NewProgressHub creates an empty hub. metrics may be nil.
func NewProgressHub(metrics *Metrics) *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[chan models.ProgressEvent]struct{}),
		metrics:     metrics,
	}
}

// Subscribe registers a new subscriber channel. The caller must call
// Unsubscribe when done.
func (h *ProgressHub) Subscribe() chan models.ProgressEvent {
	ch := make(chan models.ProgressEvent, 64)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WebSocketConnections.Inc()
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *ProgressHub) Unsubscribe(ch chan models.ProgressEvent) {
	h.mu.Lock()
	_, ok := h.subscribers[ch]
	if ok {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.WebSocketConnections.Dec()
	}
}

// Broadcast sends an event to all subscribers. Slow subscribers drop
// events rather than block job progress.
func (h *ProgressHub) Broadcast(event models.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Count returns the number of active subscribers.
func (h *ProgressHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
