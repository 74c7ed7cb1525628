// Package ws delivers real-time conversation events to connected match
// participants. Each match is a room; clients join the room of the match
// they are viewing and receive events broadcast to it.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is the wire envelope for everything pushed over a socket.
type Event struct {
	Type    string `json:"type"`
	MatchID int64  `json:"matchId"`
	Payload any    `json:"payload,omitempty"`
}

// Event types.
const (
	EventMessage     = "receive_message"
	EventMatchUpdate = "match_updated"
)

// Hub tracks which clients are subscribed to which match rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int64]map[*Client]bool)}
}

// Join subscribes a client to a match room.
func (h *Hub) Join(matchID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[matchID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[matchID] = room
	}
	room[c] = true
}

// Leave removes a client from a match room, dropping the room when it
// empties.
func (h *Hub) Leave(matchID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[matchID]
	if room == nil {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, matchID)
	}
}

// Broadcast sends an event to every client in the match's room. Clients
// whose send buffer is full are disconnected rather than blocking the
// caller.
func (h *Hub) Broadcast(matchID int64, eventType string, payload any) error {
	data, err := json.Marshal(Event{Type: eventType, MatchID: matchID, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[matchID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("dropping slow websocket client", "match_id", matchID, "user_id", c.userID)
		h.Leave(matchID, c)
		c.Close()
	}
	return nil
}
