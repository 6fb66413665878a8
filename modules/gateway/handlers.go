package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	domain "github.com/example/chat-relay/domain/chat"
	userdomain "github.com/example/chat-relay/domain/user"
	"github.com/example/chat-relay/metrics"
	"github.com/example/chat-relay/modules/assistant"
	"github.com/example/chat-relay/modules/auth"
	"github.com/example/chat-relay/modules/chat"
	"github.com/example/chat-relay/modules/relay"
)

// Handlers contains HTTP and WebSocket handlers.
type Handlers struct {
	router    *relay.Router
	chatSvc   *chat.Service
	authSvc   *auth.Service
	assistant *assistant.Client
	logger    *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(router *relay.Router, chatSvc *chat.Service, authSvc *auth.Service, ai *assistant.Client) *Handlers {
	return &Handlers{
		router:    router,
		chatSvc:   chatSvc,
		authSvc:   authSvc,
		assistant: ai,
		logger:    slog.Default(),
	}
}

// HandleWebSocket runs one client's session: authenticate, register
// with the router, then translate inbound events into router calls
// until the socket closes.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	ctx := context.Background()
	claims, err := h.authSvc.ValidateToken(ctx, c.Query("token"))
	if err != nil {
		h.logger.Info("rejecting unauthenticated websocket", "error", err)
		_ = c.WriteJSON(relay.Event{Type: "error", Error: "invalid or missing token"})
		c.Close()
		return
	}

	client := newWSClient(c)
	go client.writePump()

	connID := h.router.Connect(client, claims.UserID)
	if err := h.chatSvc.EnsureProfile(ctx, claims.UserID, claims.Username); err != nil {
		h.logger.Error("failed to ensure profile", "userID", claims.UserID, "error", err)
	}

	defer func() {
		h.router.Disconnect(connID)
		client.shutdown()
		if err := h.chatSvc.SetProfileStatus(ctx, claims.UserID, domain.StatusOffline); err != nil {
			h.logger.Error("failed to persist offline status", "userID", claims.UserID, "error", err)
		}
		h.logger.Info("websocket disconnected", "connectionID", connID, "userID", claims.UserID)
	}()

	h.logger.Info("websocket connected", "connectionID", connID, "userID", claims.UserID)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error", "connectionID", connID, "error", err)
			}
			return
		}
		metrics.MessagesReceived.Inc()

		var event ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			h.sendError(client, "invalid event format")
			continue
		}
		h.handleClientEvent(client, connID, claims, event)
	}
}

// handleClientEvent dispatches one inbound event. A malformed payload
// is reported to the sender and dropped; it never tears down the
// session or the router.
func (h *Handlers) handleClientEvent(client *wsClient, connID string, claims *userdomain.Claims, event ClientEvent) {
	switch event.Type {
	case evJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.RoomID == "" {
			h.sendError(client, "invalid join-room payload")
			return
		}
		h.router.Join(connID, p.RoomID)
		// Durable membership is the persistence collaborator's concern;
		// the router trusts the room id either way.
		if err := h.chatSvc.JoinRoom(context.Background(), p.RoomID, claims.UserID); err != nil && !errors.Is(err, chat.ErrRoomNotFound) {
			h.logger.Error("failed to record membership", "roomID", p.RoomID, "error", err)
		}

	case evLeaveRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.RoomID == "" {
			h.sendError(client, "invalid leave-room payload")
			return
		}
		h.router.Leave(connID, p.RoomID)

	case evSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.RoomID == "" || len(p.Message) == 0 {
			h.sendError(client, "invalid send-message payload")
			return
		}
		// Relayed verbatim to the whole room, sender included.
		h.router.BroadcastToRoom(p.RoomID, "new-message", p.Message, "")

	case evTyping:
		var p TypingPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.RoomID == "" {
			h.sendError(client, "invalid typing payload")
			return
		}
		h.router.Typing(connID, p.RoomID, p.Username, p.IsTyping)

	case evUpdateStatus:
		var p UpdateStatusPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.UserID == "" {
			h.sendError(client, "invalid update-status payload")
			return
		}
		h.router.SetStatus(p.UserID, p.Status)
		if err := h.chatSvc.SetProfileStatus(context.Background(), p.UserID, domain.Status(p.Status)); err != nil {
			h.logger.Error("failed to persist status", "userID", p.UserID, "error", err)
		}

	default:
		h.sendError(client, "unknown event type: "+event.Type)
	}
}

func (h *Handlers) sendError(client *wsClient, message string) {
	data, err := json.Marshal(relay.Event{Type: "error", Error: message})
	if err != nil {
		return
	}
	client.Send(data)
}

// REST handlers

// Register handles POST /api/v1/auth/register.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.authSvc.Register(c.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.chatSvc.EnsureProfile(c.Context(), user.ID, user.Username); err != nil {
		h.logger.Error("failed to create profile", "userID", user.ID, "error", err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	pair, err := h.authSvc.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		return err
	}
	return c.JSON(pair)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *Handlers) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	pair, err := h.authSvc.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid refresh token")
	}
	return c.JSON(pair)
}

// RequireAuth is the middleware guarding the API routes.
func (h *Handlers) RequireAuth(c *fiber.Ctx) error {
	token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	claims, err := h.authSvc.ValidateToken(c.Context(), token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	c.Locals("claims", claims)
	return c.Next()
}

func requestClaims(c *fiber.Ctx) *userdomain.Claims {
	claims, _ := c.Locals("claims").(*userdomain.Claims)
	return claims
}

// ListRooms handles GET /api/v1/rooms.
func (h *Handlers) ListRooms(c *fiber.Ctx) error {
	rooms, err := h.chatSvc.ListRooms(c.Context(), requestClaims(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rooms": rooms, "total": len(rooms)})
}

// CreateRoom handles POST /api/v1/rooms.
func (h *Handlers) CreateRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	room, err := h.chatSvc.CreateRoom(c.Context(), req.Name, req.Description,
		domain.RoomType(req.Type), requestClaims(c).UserID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// GetRoom handles GET /api/v1/rooms/:id.
func (h *Handlers) GetRoom(c *fiber.Ctx) error {
	room, err := h.chatSvc.GetRoom(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "room not found")
		}
		return err
	}
	return c.JSON(room)
}

// JoinRoom handles POST /api/v1/rooms/:id/join.
func (h *Handlers) JoinRoom(c *fiber.Ctx) error {
	if err := h.chatSvc.JoinRoom(c.Context(), c.Params("id"), requestClaims(c).UserID); err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "room not found")
		}
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMembers handles GET /api/v1/rooms/:id/members.
func (h *Handlers) ListMembers(c *fiber.Ctx) error {
	members, err := h.chatSvc.ListMembers(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"members": members, "total": len(members)})
}

// GetMessages handles GET /api/v1/rooms/:id/messages. Pages are
// reverse-chronological windows: older than before, at most limit.
func (h *Handlers) GetMessages(c *fiber.Ctx) error {
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "before must be RFC3339")
		}
		before = parsed
	}

	messages, err := h.chatSvc.History(c.Context(), c.Params("id"),
		requestClaims(c).UserID, before, c.QueryInt("limit", chat.DefaultPageSize))
	if err != nil {
		if errors.Is(err, chat.ErrNotAMember) {
			return fiber.NewError(fiber.StatusForbidden, "not a member of this room")
		}
		return err
	}
	return c.JSON(fiber.Map{"messages": messages, "total": len(messages)})
}

// PostMessage handles POST /api/v1/rooms/:id/messages. The saved
// message is fanned out to the room via the MessageSent event.
func (h *Handlers) PostMessage(c *fiber.Ctx) error {
	var req PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg, err := h.chatSvc.SaveMessage(c.Context(), c.Params("id"),
		requestClaims(c).UserID, req.Content, domain.MessageType(req.Type))
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "room not found")
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// AIChat handles POST /api/v1/ai/chat: generate an assistant reply from
// the message plus the trailing room history, persist it, and let the
// relay broadcast it as a normal new-message event.
func (h *Handlers) AIChat(c *fiber.Ctx) error {
	var req AIChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" || req.RoomID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message and room_id are required")
	}

	claims := requestClaims(c)
	history, err := h.chatSvc.History(c.Context(), req.RoomID, claims.UserID, time.Time{}, chat.DefaultPageSize)
	if err != nil {
		if errors.Is(err, chat.ErrNotAMember) {
			return fiber.NewError(fiber.StatusForbidden, "not a member of this room")
		}
		return err
	}

	reply, err := h.assistant.Complete(c.Context(), req.Message, history, claims.UserID)
	if err != nil {
		var cerr *assistant.CompletionError
		if errors.As(err, &cerr) {
			return c.Status(cerr.StatusCode).JSON(ErrorResponse{
				Error:   "failed to get AI response",
				Details: cerr.Details,
			})
		}
		return err
	}

	// Stored under the asking user's id, as the source system does; the
	// reply rides the normal persistence path so the room sees it as a
	// new-message event.
	msg, err := h.chatSvc.SaveMessage(c.Context(), req.RoomID, claims.UserID, reply, domain.MessageText)
	if err != nil {
		h.logger.Error("failed to save AI reply", "roomID", req.RoomID, "error", err)
		return c.JSON(fiber.Map{"response": reply})
	}
	return c.JSON(fiber.Map{"response": reply, "message": msg})
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"service":     "chat-relay",
		"connections": h.router.ConnectionCount(),
	})
}
