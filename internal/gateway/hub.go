package gateway

import (
	"encoding/json"
	"sync"

	"lanchat/internal/model"
)

// Hub is the set of live connections, identified or not.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Conn)}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; !ok {
		return false
	}
	delete(h.conns, id)
	return true
}

// snapshot copies the connection list so sends happen without the lock
func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast enqueues event to every live connection
func (h *Hub) Broadcast(event string, payload any) int {
	frame, err := encodeFrame(event, "", payload)
	if err != nil {
		return 0
	}
	n := 0
	for _, c := range h.snapshot() {
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

// SendTo enqueues event to the listed connections that are still live
func (h *Hub) SendTo(ids []string, event string, payload any) int {
	frame, err := encodeFrame(event, "", payload)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

// PublishRoster sends the full roster to every live connection
func (h *Hub) PublishRoster(roster []model.PresenceEntry) {
	h.Broadcast(model.EventUpdateOnlineUsers, roster)
}

func encodeFrame(event, ackID string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(model.Envelope{Event: event, Data: data, AckID: ackID})
}
