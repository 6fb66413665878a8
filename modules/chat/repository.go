package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/example/chat-relay/domain/chat"
)

var (
	// ErrRoomNotFound is returned when no room matches the id.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotAMember is returned when a user reads a room they have not joined.
	ErrNotAMember = errors.New("not a member of this room")
)

// Repository provides access to the durable chat store: rooms,
// memberships, profiles, and messages.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the chat schema.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&domain.Profile{},
		&domain.Room{},
		&domain.RoomMember{},
		&domain.Message{},
	)
}

// CreateRoom inserts a room and its creator's admin membership.
func (r *Repository) CreateRoom(room *domain.Room) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		if room.CreatedBy == "" {
			return nil
		}
		member := &domain.RoomMember{
			ID:       uuid.New().String(),
			RoomID:   room.ID,
			UserID:   room.CreatedBy,
			Role:     domain.RoleAdmin,
			JoinedAt: time.Now(),
		}
		return tx.Create(member).Error
	})
}

// FindRoom retrieves a room by id.
func (r *Repository) FindRoom(id string) (*domain.Room, error) {
	var room domain.Room
	if err := r.db.First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// ListRooms returns all public rooms plus private rooms the user
// belongs to, newest first.
func (r *Repository) ListRooms(userID string) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.
		Where("type = ?", domain.RoomPublic).
		Or("id IN (?)", r.db.Model(&domain.RoomMember{}).
			Select("room_id").Where("user_id = ?", userID)).
		Order("created_at DESC").
		Find(&rooms).Error
	return rooms, err
}

// AddMember records a durable room membership. Adding an existing
// member is a no-op.
func (r *Repository) AddMember(roomID, userID string, role domain.MemberRole) error {
	member := &domain.RoomMember{
		ID:       uuid.New().String(),
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error
}

// IsMember reports whether the user has joined the room.
func (r *Repository) IsMember(roomID, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// ListMembers returns the profiles of a room's members.
func (r *Repository) ListMembers(roomID string) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := r.db.
		Joins("JOIN room_members ON room_members.user_id = profiles.id").
		Where("room_members.room_id = ?", roomID).
		Find(&profiles).Error
	return profiles, err
}

// SaveMessage inserts a message.
func (r *Repository) SaveMessage(msg *domain.Message) error {
	return r.db.Create(msg).Error
}

// ListMessages returns up to limit messages in the room older than
// before, fetched newest-first and returned oldest-first so clients can
// prepend pages while scrolling back.
func (r *Repository) ListMessages(roomID string, before time.Time, limit int) ([]domain.Message, error) {
	query := r.db.
		Preload("Profile").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []domain.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpsertProfile creates or refreshes a user's chat profile.
func (r *Repository) UpsertProfile(profile *domain.Profile) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "avatar_url", "updated_at"}),
	}).Create(profile).Error
}

// UpdateProfileStatus persists a user's last known presence status.
// The relay never reads this back; it exists so clients can render
// presence for users seen only through history.
func (r *Repository) UpdateProfileStatus(userID string, status domain.Status) error {
	return r.db.Model(&domain.Profile{}).
		Where("id = ?", userID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
}

// FindProfile retrieves a profile by user id.
func (r *Repository) FindProfile(userID string) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.db.First(&profile, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
