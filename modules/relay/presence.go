package relay

import domain "github.com/example/chat-relay/domain/chat"

// Presence statuses the relay produces. domain.StatusAway exists in the
// type but is never emitted by this layer.
const (
	StatusOnline  = domain.StatusOnline
	StatusOffline = domain.StatusOffline
)

// ConnPayload identifies a connection in user-joined/user-left notices.
type ConnPayload struct {
	ConnectionID string `json:"connection_id"`
}

// StatusPayload is the body of a user-status-changed event.
type StatusPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// TypingPayload is the body of a user-typing event.
type TypingPayload struct {
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// Typing relays a typing hint to the other members of the room. The
// relay keeps no typing state and runs no timers: clearing a stale
// "is typing" indicator is the client's contract (it re-sends
// is_typing=false after its inactivity window). A client that never
// does leaves the indicator stuck; that limitation is part of the
// protocol, not something this layer papers over.
func (r *Router) Typing(senderID, roomID, username string, isTyping bool) {
	r.BroadcastToRoom(roomID, "user-typing", TypingPayload{
		Username: username,
		IsTyping: isTyping,
	}, senderID)
}

// SetStatus records and broadcasts an explicit presence update. Every
// call is relayed globally, even when the status did not change; the
// relay never debounces or coalesces transitions.
func (r *Router) SetStatus(userID, status string) {
	r.mu.Lock()
	if status == string(StatusOffline) {
		delete(r.presence, userID)
	} else {
		r.presence[userID] = status
	}
	data := r.encode("user-status-changed", StatusPayload{UserID: userID, Status: status})
	if data != nil {
		r.sendGlobalLocked(data)
	}
	r.mu.Unlock()
}

// Status reports the last status broadcast for a user. Absent users are
// offline, the initial state.
func (r *Router) Status(userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.presence[userID]; ok {
		return s
	}
	return string(StatusOffline)
}
