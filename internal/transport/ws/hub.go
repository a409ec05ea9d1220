package ws

import (
	"log/slog"
	"sync"
)

type Conn interface {
	ID() string
	// Send queues msg without blocking; an error means it was dropped.
	Send(msg Message) error
	Close() error
}

// Hub tracks which connections are subscribed to which room.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn            // connID -> connection
	rooms map[string]map[string]Conn // roomID -> connID -> connection
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]Conn),
		rooms: make(map[string]map[string]Conn),
	}
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

// Unregister drops c from every room it was in.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c.ID())
	for roomID, rs := range h.rooms {
		delete(rs, c.ID())
		if len(rs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) Join(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[roomID]
	if !ok {
		rs = make(map[string]Conn)
		h.rooms[roomID] = rs
	}
	rs[c.ID()] = c
}

func (h *Hub) Leave(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[roomID]; ok {
		delete(rs, c.ID())
		if len(rs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// RemoveRoom forgets the room and returns the connections that were in it.
func (h *Hub) RemoveRoom(roomID string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs := h.rooms[roomID]
	delete(h.rooms, roomID)
	out := make([]Conn, 0, len(rs))
	for _, c := range rs {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Broadcast(roomID string, msg Message) {
	h.BroadcastExcept(roomID, "", msg)
}

// BroadcastExcept sends msg to every connection in the room but exceptID.
func (h *Hub) BroadcastExcept(roomID, exceptID string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.rooms[roomID] {
		if id == exceptID {
			continue
		}
		if err := c.Send(msg); err != nil {
			slog.Warn("ws drop message", "room", roomID, "conn", id, "type", msg.Type, "err", err)
		}
	}
}

// SendTo unicasts msg to a registered connection. It reports whether the
// connection was known.
func (h *Hub) SendTo(connID string, msg Message) bool {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.Send(msg); err != nil {
		slog.Warn("ws drop message", "conn", connID, "type", msg.Type, "err", err)
	}
	return true
}

func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
