package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	domain "github.com/example/chat-relay/domain/chat"
)

// Validation constants
const (
	MaxRoomNameLength = 100
	MaxMessageLength  = 5000

	// DefaultPageSize is the history page size when the client asks for none.
	DefaultPageSize = 50
	// MaxPageSize caps a single history page.
	MaxPageSize = 100
)

// Validation errors
var (
	ErrRoomNameEmpty   = errors.New("room name cannot be empty")
	ErrRoomNameTooLong = errors.New("room name exceeds maximum length")
	ErrMessageEmpty    = errors.New("message content cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrMessageInvalid  = errors.New("message contains invalid characters")
)

// Emitter receives notifications about server-side writes. The module
// implements it on top of the event bus; tests leave it nil.
type Emitter interface {
	MessageSent(msg domain.Message)
	RoomCreated(room domain.Room)
}

// Service owns the durable chat data: rooms, memberships, profiles,
// messages. The relay never touches this store; a client that missed
// events while offline catches up here.
type Service struct {
	repo    *Repository
	cache   *historyCache
	emitter Emitter
}

// NewService creates a new chat service. cache and emitter may be nil.
func NewService(repo *Repository, cache *historyCache, emitter Emitter) *Service {
	return &Service{repo: repo, cache: cache, emitter: emitter}
}

// CreateRoom creates a room, records the creator as admin, and
// announces it.
func (s *Service) CreateRoom(_ context.Context, name, description string, roomType domain.RoomType, createdBy string) (*domain.Room, error) {
	if name == "" {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLength {
		return nil, ErrRoomNameTooLong
	}
	if roomType == "" {
		roomType = domain.RoomPublic
	}

	now := time.Now()
	room := &domain.Room{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Type:        roomType,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateRoom(room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	if s.emitter != nil {
		s.emitter.RoomCreated(*room)
	}
	return room, nil
}

// GetRoom retrieves a room by id.
func (s *Service) GetRoom(_ context.Context, roomID string) (*domain.Room, error) {
	return s.repo.FindRoom(roomID)
}

// ListRooms returns the rooms visible to the user.
func (s *Service) ListRooms(_ context.Context, userID string) ([]domain.Room, error) {
	return s.repo.ListRooms(userID)
}

// JoinRoom records a durable membership. Idempotent.
func (s *Service) JoinRoom(_ context.Context, roomID, userID string) error {
	if _, err := s.repo.FindRoom(roomID); err != nil {
		return err
	}
	return s.repo.AddMember(roomID, userID, domain.RoleMember)
}

// ListMembers returns the member profiles of a room.
func (s *Service) ListMembers(_ context.Context, roomID string) ([]domain.Profile, error) {
	return s.repo.ListMembers(roomID)
}

// SaveMessage validates and persists a message, then publishes a
// MessageSent event so the relay fans it out to the room.
func (s *Service) SaveMessage(ctx context.Context, roomID, userID, content string, msgType domain.MessageType) (*domain.Message, error) {
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return nil, ErrMessageInvalid
	}
	if _, err := s.repo.FindRoom(roomID); err != nil {
		return nil, err
	}
	if msgType == "" {
		msgType = domain.MessageText
	}

	now := time.Now()
	msg := &domain.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		Type:      msgType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveMessage(msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	s.cache.invalidate(ctx, roomID)
	if s.emitter != nil {
		s.emitter.MessageSent(*msg)
	}
	return msg, nil
}

// History returns a page of messages older than before (zero means
// latest), oldest-first, membership-checked. Page size defaults to
// DefaultPageSize and is capped at MaxPageSize.
func (s *Service) History(ctx context.Context, roomID, userID string, before time.Time, limit int) ([]domain.Message, error) {
	member, err := s.repo.IsMember(roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAMember
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	// Only the latest page is cached; back-scroll pages go straight to
	// the database.
	if before.IsZero() {
		return s.cache.fetch(ctx, roomID, limit, func() ([]domain.Message, error) {
			return s.repo.ListMessages(roomID, time.Time{}, limit)
		})
	}
	return s.repo.ListMessages(roomID, before, limit)
}

// EnsureProfile creates the user's chat profile if missing, refreshing
// the username otherwise.
func (s *Service) EnsureProfile(_ context.Context, userID, username string) error {
	now := time.Now()
	return s.repo.UpsertProfile(&domain.Profile{
		ID:        userID,
		Username:  username,
		Status:    domain.StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// SetProfileStatus persists the user's last known presence status.
func (s *Service) SetProfileStatus(_ context.Context, userID string, status domain.Status) error {
	return s.repo.UpdateProfileStatus(userID, status)
}
