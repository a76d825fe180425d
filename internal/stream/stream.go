// Package stream fans authority events out to live subscribers, such as the
// operator API's server-sent event feed.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/phantom-auth/authority/internal/authority"
)

const defaultBuffer = 16

// Hub fans events out to per-application subscribers. It is an
// authority.Notifier; Notify never blocks.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	buffer  int
	dropped atomic.Uint64
}

type subscriber struct {
	appID string
	ch    chan authority.Event
}

var _ authority.Notifier = (*Hub)(nil)

// New returns an empty hub. buffer sizes each subscriber channel.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[int]subscriber), buffer: buffer}
}

// Subscribe registers a subscriber for appID's events. The channel is closed
// when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, appID string) <-chan authority.Event {
	ch := make(chan authority.Event, h.buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{appID: appID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Notify publishes evt to the subscribers of its application.
func (h *Hub) Notify(_ context.Context, evt authority.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.appID != evt.ApplicationID {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// slow subscriber
			h.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports events discarded because a subscriber was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
