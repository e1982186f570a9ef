package hub

import (
	"log/slog"
	"sync"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/metrics"
)

type room struct {
	clients map[string]domain.Connection
}

// Hub is the in-memory room table. A connection may be a member of any
// number of rooms; a room exists only while it has members.
type Hub struct {
	rooms       map[string]*room
	memberships map[string]map[string]struct{}
	forwarder   domain.Forwarder
	metrics     *metrics.Metrics
	mu          sync.RWMutex
}

type Option func(*Hub)

func WithForwarder(f domain.Forwarder) Option {
	return func(h *Hub) { h.forwarder = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func New(opts ...Option) *Hub {
	h := &Hub{
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}
	return h
}

func (h *Hub) Join(conn domain.Connection, name string) bool {
	h.mu.Lock()
	r, exists := h.rooms[name]
	if !exists {
		r = &room{clients: make(map[string]domain.Connection)}
		h.rooms[name] = r
	}
	if _, member := r.clients[conn.ID()]; member {
		h.mu.Unlock()
		return false
	}
	r.clients[conn.ID()] = conn
	rooms, ok := h.memberships[conn.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		h.memberships[conn.ID()] = rooms
	}
	rooms[name] = struct{}{}
	count := len(r.clients)
	h.updateGauges()
	h.mu.Unlock()

	slog.Info("client joined", "room", name, "clientId", conn.ID(), "clients", count)
	return true
}

func (h *Hub) Leave(conn domain.Connection, name string) {
	h.mu.Lock()
	removed := h.removeLocked(conn.ID(), name)
	h.updateGauges()
	h.mu.Unlock()

	if removed {
		slog.Info("client left", "room", name, "clientId", conn.ID())
	}
}

func (h *Hub) Disconnect(conn domain.Connection) {
	h.mu.Lock()
	var left []string
	for name := range h.memberships[conn.ID()] {
		if h.removeLocked(conn.ID(), name) {
			left = append(left, name)
		}
	}
	delete(h.memberships, conn.ID())
	h.updateGauges()
	h.mu.Unlock()

	slog.Info("client disconnected", "clientId", conn.ID(), "rooms", len(left))
}

// removeLocked drops one membership and discards the room once it is empty.
func (h *Hub) removeLocked(id, name string) bool {
	r, exists := h.rooms[name]
	if !exists {
		return false
	}
	if _, member := r.clients[id]; !member {
		return false
	}
	delete(r.clients, id)
	if rooms, ok := h.memberships[id]; ok {
		delete(rooms, name)
		if len(rooms) == 0 {
			delete(h.memberships, id)
		}
	}
	if len(r.clients) == 0 {
		delete(h.rooms, name)
		slog.Info("room removed", "room", name)
	}
	return true
}

// Publish fans data out to every member of the room except the sender and
// hands it to the forwarder, if any. A nil sender publishes on behalf of the
// server. It returns the local delivery count.
func (h *Hub) Publish(sender domain.Connection, name string, data []byte) int {
	h.metrics.Published.Inc()
	if h.forwarder != nil {
		h.forwarder.Forward(name, data)
	}
	skipID := ""
	if sender != nil {
		skipID = sender.ID()
	}
	return h.fanOut(name, data, skipID)
}

// Deliver fans data out to every member of the room.
func (h *Hub) Deliver(name string, data []byte) int {
	return h.fanOut(name, data, "")
}

func (h *Hub) fanOut(name string, data []byte, skipID string) int {
	h.mu.RLock()
	r, exists := h.rooms[name]
	if !exists {
		h.mu.RUnlock()
		return 0
	}

	var failed []domain.Connection
	delivered := 0
	for id, conn := range r.clients {
		if id == skipID {
			continue
		}
		if err := conn.Send(data); err != nil {
			failed = append(failed, conn)
			continue
		}
		delivered++
	}
	h.mu.RUnlock()

	h.metrics.Delivered.Add(float64(delivered))
	for _, conn := range failed {
		h.metrics.Dropped.Inc()
		slog.Warn("dropping unresponsive client", "room", name, "clientId", conn.ID())
		go func(c domain.Connection) {
			h.Disconnect(c)
			c.Close()
		}(conn)
	}
	return delivered
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), len(h.memberships)
}

// Members returns the ids of the connections joined to a room.
func (h *Hub) Members(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, exists := h.rooms[name]
	if !exists {
		return nil
	}
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) updateGauges() {
	h.metrics.Rooms.Set(float64(len(h.rooms)))
	h.metrics.Connections.Set(float64(len(h.memberships)))
}
