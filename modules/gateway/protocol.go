package gateway

import "encoding/json"

// ClientEvent is the envelope for every frame a client sends. Outbound
// frames use relay.Event, which has the same shape.
type ClientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event types.
const (
	evJoinRoom     = "join-room"
	evLeaveRoom    = "leave-room"
	evSendMessage  = "send-message"
	evTyping       = "typing"
	evUpdateStatus = "update-status"
)

// JoinRoomPayload is the payload for join-room and leave-room.
type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

// SendMessagePayload carries a message to relay to a room. The message
// body is opaque to the server and relayed verbatim.
type SendMessagePayload struct {
	RoomID  string          `json:"room_id"`
	Message json.RawMessage `json:"message"`
}

// TypingPayload is a client's typing hint.
type TypingPayload struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// UpdateStatusPayload is an explicit presence update.
type UpdateStatusPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// Request/response bodies for the REST API.

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type AIChatRequest struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
