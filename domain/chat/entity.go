package chat

import "time"

// Status is a user's presence status. The relay layer only ever
// produces StatusOnline and StatusOffline; StatusAway is reserved for
// clients that set it explicitly.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
)

// RoomType distinguishes public rooms from invite-only ones.
type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

// MemberRole is a member's role within a room.
type MemberRole string

const (
	RoleAdmin     MemberRole = "admin"
	RoleModerator MemberRole = "moderator"
	RoleMember    MemberRole = "member"
)

// MessageType distinguishes message payload kinds.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Profile is a user's public chat profile.
type Profile struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Username    string    `json:"username" gorm:"uniqueIndex"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Room is a named scope that connections join and leave.
type Room struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        RoomType  `json:"type"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoomMember records a user's durable membership in a room. This is
// distinct from the relay's in-memory connection registry: a member can
// be offline.
type RoomMember struct {
	ID       string     `json:"id" gorm:"primaryKey"`
	RoomID   string     `json:"room_id" gorm:"index:idx_room_user,unique"`
	UserID   string     `json:"user_id" gorm:"index:idx_room_user,unique"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
}

// Message is a persisted chat message.
type Message struct {
	ID        string      `json:"id" gorm:"primaryKey"`
	RoomID    string      `json:"room_id" gorm:"index:idx_room_created"`
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at" gorm:"index:idx_room_created"`
	UpdatedAt time.Time   `json:"updated_at"`
	Profile   *Profile    `json:"profile,omitempty" gorm:"foreignKey:UserID;references:ID"`
}
