// Package stream fans committed fund events out to connected feed clients.
package stream

import (
	"sync"

	"stokvel/internal/domain"
	"stokvel/internal/metrics"
	"stokvel/pkg/logger"
)

// subscriberBuffer is how far a slow client may fall behind before its feed
// is cut. Clients that need a complete history replay the journal over HTTP.
const subscriberBuffer = 64

// Hub distributes committed events to subscribers. Publish never blocks the
// ledger commit path: a subscriber whose buffer is full gets disconnected
// instead of stalling the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	logger      logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscription]struct{}),
		logger:      log,
	}
}

// Subscription is one client's live event feed. Its channel is closed when
// the client unsubscribes or falls too far behind.
type Subscription struct {
	ch chan domain.Event
}

// Events is the feed channel. It closes when the subscription ends.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Subscribe registers a new feed. Callers must Unsubscribe when done.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan domain.Event, subscriberBuffer)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	metrics.StreamSubscribers.Set(float64(count))
	return sub
}

// Unsubscribe removes the feed and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	metrics.StreamSubscribers.Set(float64(count))
}

// Publish delivers event to every subscriber without blocking. Subscribers
// with a full buffer are dropped on the spot.
func (h *Hub) Publish(event domain.Event) {
	h.mu.Lock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- event:
		default:
			delete(h.subscribers, sub)
			close(sub.ch)
			h.logger.Warn("Dropped slow event feed client", map[string]interface{}{
				"event_seq": event.Seq,
				"remaining": len(h.subscribers),
			})
		}
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	metrics.StreamSubscribers.Set(float64(count))
}

// SubscriberCount reports how many feeds are currently attached.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
