// Package transport implements flowrt's inbound-only sync fabric: an
// in-process event broker plus the HTTP, WebSocket, and SSE adapters that
// sit in front of system/rpc's router (§4.5).
package transport

import (
	"sync"
	"time"
)

// Event is one fact published to the broker, keyed by Type for subscriber
// routing and buffering.
type Event struct {
	Type      string
	Payload   any
	Timestamp time.Time
}

// Subscription is a live subscriber's channel handle. Ch delivers events;
// publish is a non-blocking send that, when the channel's buffer is full,
// discards the oldest queued event to make room and counts the drop on the
// broker (§9 REDESIGN FLAGS:
// "callback-based subscriber sets → channels; buffered channel per
// subscription; drop-oldest on a full channel").
type Subscription struct {
	ID   string
	Type string
	Ch   chan Event
}

// Broker is a single in-process pub/sub with per-type subscriber sets and a
// bounded ring buffer per type, so late subscribers can catch up via
// BufferedSince.
type Broker struct {
	mu          sync.RWMutex
	bufferSize  int
	subscribers map[string]map[string]*Subscription
	buffers     map[string][]Event
	drops       map[string]uint64
}

// NewBroker builds a Broker whose per-type ring buffer holds bufferSize
// events, evicting the oldest once full.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Broker{
		bufferSize:  bufferSize,
		subscribers: make(map[string]map[string]*Subscription),
		buffers:     make(map[string][]Event),
		drops:       make(map[string]uint64),
	}
}

// Subscribe registers a new subscription for eventType with the given
// channel capacity, returning a handle the caller reads Ch from until
// Unsubscribe.
func (b *Broker) Subscribe(eventType string, chanCapacity int) *Subscription {
	if chanCapacity <= 0 {
		chanCapacity = 32
	}
	sub := &Subscription{ID: newConnectionID(), Type: eventType, Ch: make(chan Event, chanCapacity)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[string]*Subscription)
	}
	b.subscribers[eventType][sub.ID] = sub
	return sub
}

// Unsubscribe removes sub from its type's subscriber set and closes its
// channel so the reading goroutine can exit.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscribers[sub.Type]; ok {
		delete(set, sub.ID)
	}
	close(sub.Ch)
}

// Publish enqueues evt into its type's ring buffer (evicting the oldest
// entry once full) and pushes it to every live subscriber of that type. A
// full subscriber channel loses its oldest queued event to make room for
// evt rather than blocking the publisher; each such loss is counted.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	buf := append(b.buffers[evt.Type], evt)
	if len(buf) > b.bufferSize {
		buf = buf[len(buf)-b.bufferSize:]
	}
	b.buffers[evt.Type] = buf

	subs := make([]*Subscription, 0, len(b.subscribers[evt.Type]))
	for _, s := range b.subscribers[evt.Type] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.Ch <- evt:
		default:
			select {
			case <-s.Ch:
			default:
			}
			select {
			case s.Ch <- evt:
			default:
			}
			b.mu.Lock()
			b.drops[evt.Type]++
			b.mu.Unlock()
		}
	}
}

// BufferedSince returns eventType's buffered events with Timestamp >= since,
// letting a late subscriber catch up on what it missed before subscribing.
func (b *Broker) BufferedSince(eventType string, since time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buf := b.buffers[eventType]
	out := make([]Event, 0, len(buf))
	for _, evt := range buf {
		if !evt.Timestamp.Before(since) {
			out = append(out, evt)
		}
	}
	return out
}

// Drops returns the number of events discarded for eventType due to a full
// subscriber channel.
func (b *Broker) Drops(eventType string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.drops[eventType]
}
