// Package stream fans committed lending events out to live subscribers.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/peace-bassey/BitTrust/internal/lending"
)

const bufferSize = 16

// Filter selects events for one subscriber. A nil Filter accepts everything.
type Filter func(lending.Event) bool

// ForUser accepts only events about user.
func ForUser(user string) Filter {
	return func(evt lending.Event) bool { return evt.User == user }
}

type subscriber struct {
	ch     chan lending.Event
	filter Filter
}

// Hub fan-outs events to all active subscribers (SSE clients). Slow
// subscribers miss events rather than block the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Uint64
}

var _ lending.EventSink = (*Hub)(nil)

// New initialises an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// matching events. The channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) <-chan lending.Event {
	ch := make(chan lending.Event, bufferSize)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{ch: ch, filter: filter}
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

// Publish fan-outs evt to all matching subscribers.
func (h *Hub) Publish(evt lending.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
