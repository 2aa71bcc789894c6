// Package broadcast fans out enriched DHCP observations to live
// subscribers (the WebSocket façade), lossily and without blocking the
// ingest pipeline.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dhcpsentry/dhcpsentry/internal/detect"
	"github.com/dhcpsentry/dhcpsentry/internal/metrics"
)

const subscriberBufferSize = 100

// Hub is a non-blocking, multi-subscriber fan-out of *detect.Request,
// grounded on the teacher's internal/events/bus.go Bus: the same
// subscribe/unsubscribe/drop-if-full shape, generalized from fanning out
// typed lease-lifecycle events to fanning out one enriched DHCP
// observation per live viewer.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan *detect.Request
	logger      *slog.Logger
}

// NewHub returns an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: map[string]chan *detect.Request{},
		logger:      logger,
	}
}

// Publish sends req to every current subscriber. Non-blocking: a
// subscriber whose channel is full misses the item rather than stalling
// the pipeline, matching spec.md's explicit best-effort requirement.
func (h *Hub) Publish(req *detect.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.subscribers) == 0 {
		return
	}

	for id, ch := range h.subscribers {
		select {
		case ch <- req:
		default:
			metrics.BroadcastDrops.Inc()
			h.logger.Warn("broadcast subscriber buffer full, dropping item", "subscriber_id", id)
		}
	}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. priming is delivered into the channel before any live item,
// letting a new viewer catch up on recent history (the last-50-entries
// burst spec.md §4.8 calls for) without this package importing the
// history ring directly — the caller supplies the burst.
func (h *Hub) Subscribe(priming []*detect.Request) (string, <-chan *detect.Request) {
	ch := make(chan *detect.Request, subscriberBufferSize+len(priming))
	for _, req := range priming {
		ch <- req
	}

	id := uuid.NewString()

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes and closes the subscriber's channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(ch)
}

// SubscriberCount returns the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
