// Package hub fans chat events out to the websocket connections watching a session.
package hub

import (
	"sync"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
)

const subscriberBuffer = 16

type EventType string

const (
	EventMessage EventType = "message"
	EventRead    EventType = "read"
	EventStatus  EventType = "status"
)

type Event struct {
	Type      EventType          `json:"type"`
	SessionID string             `json:"sessionId"`
	Message   *chatstore.Message `json:"message,omitempty"`
	Active    *bool              `json:"active,omitempty"`
}

type subscriber struct {
	ch     chan Event
	userID string
}

// Hub is safe for concurrent use. A slow subscriber loses events rather
// than blocking publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func New() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers userID on sessionID. The returned cancel func is
// idempotent and closes the channel.
func (h *Hub) Subscribe(sessionID, userID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer), userID: userID}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { h.remove(sessionID, s) })
	}
}

func (h *Hub) remove(sessionID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(h.subs, sessionID)
	}
}

// Publish delivers ev to every subscriber of its session and returns how many received it.
func (h *Hub) Publish(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for s := range h.subs[ev.SessionID] {
		select {
		case s.ch <- ev:
			delivered++
		default:
			logging.ErrorLogger.Warn("dropping chat event for slow subscriber",
				zap.String("session_id", ev.SessionID), zap.String("user_id", s.userID))
		}
	}
	return delivered
}

// Subscribers reports how many connections watch sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, id)
	}
}
