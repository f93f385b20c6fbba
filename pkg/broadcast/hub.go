// Package broadcast is the same-device publish/subscribe channel used by
// the local transport and the read tracker. Every room maps to a topic;
// read-state pings share the single "readstate" topic so conversation-list
// views can recompute badges without subscribing to each room.
package broadcast

import (
	"sync"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Event kinds carried over the hub.
const (
	EventMessage  = "message"
	EventReadPing = "read_ping"
)

// ReadStateTopic is the shared topic for read-state pings.
const ReadStateTopic = "readstate"

// Event is a hub payload. Msg is set for EventMessage; Role for pings.
type Event struct {
	Type string          `json:"type"`
	Room string          `json:"room"`
	Msg  *models.Message `json:"msg,omitempty"`
	Role models.Role     `json:"role,omitempty"`
}

// Subscription delivers events for one topic on C until Close. The
// publisher's own subscription never receives its publish, mirroring how
// a broadcast channel does not echo into the posting view.
type Subscription struct {
	C chan Event

	hub    *Hub
	topic  string
	closed bool
}

// Hub fans events out to same-process subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Default is the process-wide hub shared by all views of this device.
var Default = NewHub()

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers for events on topic. Slow subscribers drop events
// instead of blocking publishers; the dedup ledger and the storage-change
// fallback absorb any gap.
func (h *Hub) Subscribe(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 32
	}
	sub := &Subscription{C: make(chan Event, buffer), hub: h, topic: topic}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Close detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return
	}
	if set, ok := s.hub.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.hub.subs, s.topic)
		}
	}
	s.closed = true
	close(s.C)
}

// Publish delivers ev to every subscriber of topic except the origin
// subscription, which may be nil.
func (h *Hub) Publish(topic string, ev Event, origin *Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[topic] {
		if sub == origin {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			logger.Debug("broadcast_dropped", "topic", topic, "type", ev.Type)
		}
	}
}
