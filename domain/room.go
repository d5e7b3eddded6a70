package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"workchat/errors"
)

type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
)

// LastMessage is the denormalized summary shown in room lists.
type LastMessage struct {
	MessageID uuid.UUID
	Text      string
	SentBy    string
	SentAt    time.Time
}

// Room owns its participant set, per-member unread counters and
// last-message summary. The participant set is the sole source of truth
// for membership and access control.
type Room struct {
	ID           uuid.UUID
	Kind         RoomKind
	Name         string
	Description  string
	Participants []string
	CreatedBy    string
	LastMessage  *LastMessage
	// UnreadCount maps participant employee id to a non-negative counter.
	// Keys exist only for current participants.
	UnreadCount map[string]int
	ArchivedBy  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the structural invariants:
// direct rooms have exactly 2 distinct participants, groups at least 2.
func (r *Room) Validate() error {
	unique := lo.Uniq(r.Participants)
	switch r.Kind {
	case RoomDirect:
		if len(unique) != 2 || len(r.Participants) != 2 {
			return errors.ErrSelfChat
		}
	case RoomGroup:
		if len(unique) < 2 {
			return errors.ErrGroupTooSmall
		}
		if r.Name == "" {
			return errors.ErrNameRequired
		}
	default:
		return errors.ErrInvalidPayload
	}
	return nil
}

// IsParticipant reports whether the canonical id belongs to the room.
// Callers must resolve identifiers before asking; raw aliases never match.
func (r *Room) IsParticipant(employeeID string) bool {
	return lo.Contains(r.Participants, employeeID)
}

// OtherParticipant returns the single non-self participant of a direct
// room. A result equal to selfID would mean the stored participant set
// violates its own invariant, which is reported instead of silently
// returning self.
func (r *Room) OtherParticipant(selfID string) (string, error) {
	if r.Kind != RoomDirect {
		return "", errors.ErrNotGroup
	}
	other, found := lo.Find(r.Participants, func(p string) bool {
		return p != selfID
	})
	if !found || other == selfID {
		return "", errors.ErrInternalConsistency
	}
	return other, nil
}

// UpdateLastMessage refreshes the room summary from a freshly persisted message.
func (r *Room) UpdateLastMessage(m Message) {
	r.LastMessage = &LastMessage{
		MessageID: m.ID,
		Text:      m.Text,
		SentBy:    m.SenderID,
		SentAt:    m.CreatedAt,
	}
}

// IncrementUnread bumps a participant counter, treating an absent key as 0.
func (r *Room) IncrementUnread(employeeID string) {
	if r.UnreadCount == nil {
		r.UnreadCount = make(map[string]int)
	}
	r.UnreadCount[employeeID]++
}

func (r *Room) ResetUnread(employeeID string) {
	if r.UnreadCount == nil {
		r.UnreadCount = make(map[string]int)
	}
	r.UnreadCount[employeeID] = 0
}

func (r *Room) UnreadFor(employeeID string) int {
	return r.UnreadCount[employeeID]
}

// AddParticipant appends a member and initializes their counter.
func (r *Room) AddParticipant(employeeID string) {
	r.Participants = append(r.Participants, employeeID)
	r.ResetUnread(employeeID)
}

// RemoveParticipant drops a member together with their counter entry.
// Counter keys must exist only for current participants.
func (r *Room) RemoveParticipant(employeeID string) {
	r.Participants = lo.Filter(r.Participants, func(p string, _ int) bool {
		return p != employeeID
	})
	delete(r.UnreadCount, employeeID)
}

func (r *Room) ToggleArchived(employeeID string) {
	if lo.Contains(r.ArchivedBy, employeeID) {
		r.ArchivedBy = lo.Filter(r.ArchivedBy, func(p string, _ int) bool {
			return p != employeeID
		})
		return
	}
	r.ArchivedBy = append(r.ArchivedBy, employeeID)
}
