// Package hub fans live events out to subscribed connections.
package hub

import (
	"sync"

	"github.com/goccy/go-json"
)

// AdminChannel carries catch events to the admin dashboard.
const AdminChannel = "admin"

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	Channel string
	Writer  Writer
}

// Event is the envelope of every message pushed to subscribers.
type Event struct {
	Type string `json:"type"`
	Body any    `json:"body,omitempty"`
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.Channel] == nil {
		h.connections[conn.Channel] = make(map[*Connection]struct{})
	}
	h.connections[conn.Channel][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.Channel]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.Channel)
	}
}

// Len returns the number of connections subscribed to channel.
func (h *Hub) Len(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[channel])
}

// Broadcast writes message to every connection on channel. Connections that
// fail a write are closed and dropped.
func (h *Hub) Broadcast(channel string, message []byte) {
	h.mu.RLock()
	set := h.connections[channel]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

// Publish encodes ev and broadcasts it. A nil hub or an empty channel is a no-op.
func (h *Hub) Publish(channel string, ev Event) error {
	if h == nil || h.Len(channel) == 0 {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Broadcast(channel, data)
	return nil
}
