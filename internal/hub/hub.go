// Package hub fans live snapshots out to in-process subscribers.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"forex-observer/internal/market"
)

const defaultQueueSize = 50

// Subscription receives published snapshots on C. A subscriber that stops
// draining loses its oldest entries first; other subscribers are unaffected.
type Subscription struct {
	C   chan market.Snapshot
	hub *Hub
}

// Close removes the subscription and closes its channel.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub broadcasts snapshots to any number of subscribers and remembers the
// most recent one. Publishing never blocks the producer.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	latest    *market.Snapshot
	queueSize int
	logger    zerolog.Logger
}

// New constructs a hub with the given per-subscriber queue size.
func New(queueSize int, logger zerolog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		subs:      map[*Subscription]struct{}{},
		queueSize: queueSize,
		logger:    logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan market.Snapshot, h.queueSize), hub: h}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.C)
}

// Publish delivers snap to every subscriber and records it as latest. When
// a subscriber queue is full the oldest entry is dropped to make room.
func (h *Hub) Publish(snap market.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = &snap
	for sub := range h.subs {
		select {
		case sub.C <- snap:
			continue
		default:
		}

		select {
		case <-sub.C:
			h.logger.Debug().Msg("subscriber queue full, dropping oldest snapshot")
		default:
		}
		select {
		case sub.C <- snap:
		default:
		}
	}
}

// Latest returns the most recently published snapshot, if any.
func (h *Hub) Latest() (market.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latest == nil {
		return market.Snapshot{}, false
	}
	return *h.latest, true
}

// Len returns the current number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
