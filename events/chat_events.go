package events

import (
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/chat-relay/domain/chat"
)

// MessageSentEvent is emitted when the chat module persists a message
// written server-side (REST or assistant). The relay module consumes it
// and fans the message out to the room as a new-message event.
type MessageSentEvent struct {
	Message domain.Message `json:"message"`
}

// RoomCreatedEvent is emitted when a new room is created so every
// connected client can refresh its room list.
type RoomCreatedEvent struct {
	Room domain.Room `json:"room"`
}

// Event definitions for the chat domain.
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"chat",
		"MessageSent",
		"v1",
	)

	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"chat",
		"RoomCreated",
		"v1",
	)
)
