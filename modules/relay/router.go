// Package relay implements the realtime room fan-out core: a registry
// of live connections, a room-scoped broadcast router, and the
// presence/typing coordinator. It holds no durable state; on restart
// every client must reconnect and rejoin.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/example/chat-relay/metrics"
)

// Conn is the capability the router needs from a transport connection:
// enqueue one outbound frame and report liveness. Send must never
// block; it returns false once the connection is gone. Implementations
// that drop frames on a full buffer still return true: a slow client
// loses frames, it does not stall the router.
type Conn interface {
	Send(data []byte) bool
	Alive() bool
}

// Event is the envelope every outbound frame is wrapped in.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// connection is a registered connection and the set of rooms it has
// joined. rooms and the router's room index are kept bidirectionally
// consistent under the router mutex.
type connection struct {
	conn   Conn
	userID string
	rooms  map[string]struct{}
}

// Router owns the connection registry and room membership index for a
// single process. All mutations and broadcasts are linearized under one
// mutex; the only work done while holding it is a non-blocking enqueue
// per recipient. Delivery is best-effort: dead connections are skipped
// silently, nothing is retried or queued.
type Router struct {
	mu       sync.Mutex
	conns    map[string]*connection
	rooms    map[string]map[string]struct{}
	presence map[string]string // userID -> last broadcast status, absent means offline
	logger   *slog.Logger
}

// NewRouter creates an empty Router. One instance per process; handlers
// receive it by reference.
func NewRouter() *Router {
	return &Router{
		conns:    make(map[string]*connection),
		rooms:    make(map[string]map[string]struct{}),
		presence: make(map[string]string),
		logger:   slog.Default(),
	}
}

// Connect registers a live connection and returns its identifier.
// userID may be empty for unidentified connections; identified ones
// participate in presence transitions.
func (r *Router) Connect(c Conn, userID string) string {
	id := uuid.New().String()

	r.mu.Lock()
	r.conns[id] = &connection{
		conn:   c,
		userID: userID,
		rooms:  make(map[string]struct{}),
	}
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()
	r.logger.Info("connection registered", "connectionID", id, "userID", userID)
	return id
}

// Disconnect removes the connection from every room it joined and
// discards it. Idempotent: disconnecting an unknown or already-removed
// connection is a no-op. When the connection carried an identity, an
// offline presence transition is broadcast.
func (r *Router) Disconnect(id string) {
	r.mu.Lock()
	entry, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	for roomID := range entry.rooms {
		r.removeFromRoom(id, roomID)
	}
	delete(r.conns, id)

	if _, present := r.presence[entry.userID]; entry.userID != "" && present {
		delete(r.presence, entry.userID)
		if data := r.encode("user-status-changed", StatusPayload{
			UserID: entry.userID,
			Status: string(StatusOffline),
		}); data != nil {
			r.sendGlobalLocked(data)
		}
	}
	r.mu.Unlock()

	metrics.ActiveConnections.Dec()
	r.logger.Info("connection removed", "connectionID", id)
}

// Join adds the connection to a room and notifies the other members
// with a user-joined event. Joining a room twice is a no-op beyond the
// duplicate notice being suppressed. An identified connection's first
// join flips its user online.
func (r *Router) Join(id, roomID string) {
	r.mu.Lock()
	entry, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, member := entry.rooms[roomID]; member {
		r.mu.Unlock()
		return
	}
	entry.rooms[roomID] = struct{}{}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][id] = struct{}{}

	if data := r.encode("user-joined", ConnPayload{ConnectionID: id}); data != nil {
		r.sendRoomLocked(roomID, data, id)
	}
	if entry.userID != "" && r.presence[entry.userID] != string(StatusOnline) {
		r.presence[entry.userID] = string(StatusOnline)
		if data := r.encode("user-status-changed", StatusPayload{
			UserID: entry.userID,
			Status: string(StatusOnline),
		}); data != nil {
			r.sendGlobalLocked(data)
		}
	}
	r.mu.Unlock()

	r.logger.Info("joined room", "connectionID", id, "roomID", roomID)
}

// Leave removes the connection from a room and notifies the remaining
// members. Leaving a room the connection never joined is a no-op.
func (r *Router) Leave(id, roomID string) {
	r.mu.Lock()
	entry, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, member := entry.rooms[roomID]; !member {
		r.mu.Unlock()
		return
	}
	delete(entry.rooms, roomID)
	r.removeFromRoom(id, roomID)

	if data := r.encode("user-left", ConnPayload{ConnectionID: id}); data != nil {
		r.sendRoomLocked(roomID, data, id)
	}
	r.mu.Unlock()

	r.logger.Info("left room", "connectionID", id, "roomID", roomID)
}

// BroadcastToRoom delivers one event to every connection currently in
// the room, skipping excludeID when non-empty. The payload is relayed
// verbatim; a payload that cannot be marshaled is logged and dropped.
func (r *Router) BroadcastToRoom(roomID, eventType string, payload any, excludeID string) {
	data := r.encode(eventType, payload)
	if data == nil {
		return
	}
	r.mu.Lock()
	r.sendRoomLocked(roomID, data, excludeID)
	r.mu.Unlock()
}

// BroadcastGlobal delivers one event to every connection regardless of
// room membership. Used for presence status changes only.
func (r *Router) BroadcastGlobal(eventType string, payload any) {
	data := r.encode(eventType, payload)
	if data == nil {
		return
	}
	r.mu.Lock()
	r.sendGlobalLocked(data)
	r.mu.Unlock()
}

// ConnectionCount returns the number of live connections.
func (r *Router) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// RoomCount returns the number of rooms with at least one connection.
func (r *Router) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// removeFromRoom drops a connection id from the room index. Caller
// holds the mutex.
func (r *Router) removeFromRoom(id, roomID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// sendRoomLocked fans data out to the room's current members. Caller
// holds the mutex. Recipients whose connection reports dead are skipped
// and lazily dropped from the registry bookkeeping at disconnect; a
// mid-broadcast disconnect is a skip, never an error.
func (r *Router) sendRoomLocked(roomID string, data []byte, excludeID string) {
	for id := range r.rooms[roomID] {
		if id == excludeID {
			continue
		}
		r.sendOneLocked(id, data)
	}
}

// sendGlobalLocked fans data out to every live connection. Caller holds
// the mutex.
func (r *Router) sendGlobalLocked(data []byte) {
	for id := range r.conns {
		r.sendOneLocked(id, data)
	}
}

func (r *Router) sendOneLocked(id string, data []byte) {
	entry, ok := r.conns[id]
	if !ok || !entry.conn.Alive() {
		return
	}
	if entry.conn.Send(data) {
		metrics.EventsDelivered.Inc()
	}
}

// encode wraps a payload in the outbound envelope. Returns nil when the
// payload cannot be marshaled; the event is dropped, never fatal.
func (r *Router) encode(eventType string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("dropping unmarshalable event", "type", eventType, "error", err)
		return nil
	}
	data, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		r.logger.Error("dropping unmarshalable event", "type", eventType, "error", err)
		return nil
	}
	return data
}
