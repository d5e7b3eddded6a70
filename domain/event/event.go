// Package event defines the domain events broadcast to connected
// sessions. Event names match the wire protocol of the realtime surface.
package event

import (
	"time"

	"github.com/google/uuid"

	"workchat/domain"
)

type DomainEvent interface {
	EventName() string
}

// NewMessage is pushed to every session subscribed to the room.
type NewMessage struct {
	Message domain.Message
}

func (NewMessage) EventName() string { return "new-message" }

// RoomUpdated carries the refreshed room summary after a send, a
// membership change or a presence transition. OtherUser is set for
// direct rooms, Presence for group rooms.
type RoomUpdated struct {
	Room      domain.Room
	OtherUser *domain.Identity
	Presence  *domain.RoomPresence
	Unread    int
}

func (RoomUpdated) EventName() string { return "room-updated" }

// UserStatus is broadcast globally on actual presence transitions.
type UserStatus struct {
	EmployeeID string
	Online     bool
}

func (UserStatus) EventName() string { return "user-status" }

// Typing is relayed to other subscribed sessions only, never persisted.
type Typing struct {
	RoomID     uuid.UUID
	EmployeeID string
	Name       string
	IsTyping   bool
}

func (Typing) EventName() string { return "typing" }

type MessageRead struct {
	RoomID     uuid.UUID
	MessageID  uuid.UUID
	EmployeeID string
}

func (MessageRead) EventName() string { return "message-read" }

// MessagesRead is the bulk variant emitted when a member catches up on
// a whole room at once.
type MessagesRead struct {
	RoomID     uuid.UUID
	EmployeeID string
	ReadAt     time.Time
	Count      int
}

func (MessagesRead) EventName() string { return "messages-read" }

// RoomCreated notifies online participants that a conversation now
// exists, so clients can show it without polling.
type RoomCreated struct {
	Room domain.Room
}

func (RoomCreated) EventName() string { return "new-chat" }
