package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"parkclash/internal/model"
)

// Hub keeps the per-match rooms of this instance and fans events out to them
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Join adds the client to the room of a match
func (h *Hub) Join(matchID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[matchID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[matchID] = room
	}
	room[c] = struct{}{}
}

// Leave removes the client from a room; empty rooms are dropped
func (h *Hub) Leave(matchID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[matchID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, matchID)
	}
}

// RoomSize returns the number of connections in a match room
func (h *Hub) RoomSize(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

// Publish delivers the event to the local room. It implements the match notifier
// for single instance deployments.
func (h *Hub) Publish(_ context.Context, matchID, excludePlayerID string, event model.OutboundEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type, err)
	}
	h.Deliver(matchID, excludePlayerID, data)
	return nil
}

// Deliver sends pre-marshaled bytes to every connection in the room except those
// of excludePlayerID. Slow clients drop the message. Returns the number queued.
func (h *Hub) Deliver(matchID, excludePlayerID string, data []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[matchID]))
	for c := range h.rooms[matchID] {
		if excludePlayerID != "" && c.identity.UserID == excludePlayerID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	queued := 0
	for _, c := range targets {
		if c.SendRaw(data) {
			queued++
		}
	}
	return queued
}
