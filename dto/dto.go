// Package dto holds the JSON shapes shared by the realtime and REST
// surfaces. Field names follow the client contract, not Go convention.
package dto

import (
	"time"

	"workchat/domain"
	"workchat/services"
)

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	Mime string `json:"mime,omitempty"`
}

type Receipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type Message struct {
	ID          string      `json:"id"`
	RoomID      string      `json:"roomId"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName"`
	SenderRole  string      `json:"senderRole,omitempty"`
	Text        string      `json:"text"`
	Kind        string      `json:"type"`
	Lang        string      `json:"lang,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	ReadBy      []Receipt   `json:"readBy,omitempty"`
	DeliveredTo []string    `json:"deliveredTo,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type LastMessage struct {
	MessageID string    `json:"messageId"`
	Text      string    `json:"text"`
	SentBy    string    `json:"sentBy"`
	SentAt    time.Time `json:"sentAt"`
}

type User struct {
	EmployeeID string    `json:"employeeId"`
	LoginID    string    `json:"loginId,omitempty"`
	Name       string    `json:"name"`
	Role       string    `json:"role,omitempty"`
	Department string    `json:"department,omitempty"`
	Position   string    `json:"position,omitempty"`
	Online     bool      `json:"online"`
	LastSeen   time.Time `json:"lastSeen"`
}

type MemberStatus struct {
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Online     bool   `json:"online"`
}

type Presence struct {
	Members     map[string]MemberStatus `json:"members"`
	OnlineCount int                     `json:"onlineCount"`
	TotalCount  int                     `json:"totalCount"`
}

type Room struct {
	ID           string       `json:"id"`
	Kind         string       `json:"type"`
	Name         string       `json:"name,omitempty"`
	Description  string       `json:"description,omitempty"`
	Participants []string     `json:"participants"`
	CreatedBy    string       `json:"createdBy"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"`
	OtherUser    *User        `json:"otherUser,omitempty"`
	Presence     *Presence    `json:"presence,omitempty"`
	ArchivedBy   []string     `json:"archivedBy,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func ToMessage(m domain.Message) Message {
	out := Message{
		ID:          m.ID.String(),
		RoomID:      m.RoomID.String(),
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SenderRole:  m.SenderRole,
		Text:        m.Text,
		Kind:        string(m.Kind),
		Lang:        m.Lang,
		DeliveredTo: m.DeliveredTo,
		CreatedAt:   m.CreatedAt,
	}
	for _, r := range m.ReadBy {
		out.ReadBy = append(out.ReadBy, Receipt{UserID: r.EmployeeID, ReadAt: r.ReadAt})
	}
	if m.Attachment != nil {
		out.Attachment = &Attachment{
			URL:  m.Attachment.URL,
			Name: m.Attachment.Name,
			Size: m.Attachment.Size,
			Mime: m.Attachment.Mime,
		}
	}
	return out
}

func ToUser(i domain.Identity) User {
	return User{
		EmployeeID: i.EmployeeID,
		LoginID:    i.LoginID,
		Name:       i.Name,
		Role:       i.Role,
		Department: i.Department,
		Position:   i.Position,
		Online:     i.Online,
		LastSeen:   i.LastSeen,
	}
}

func ToPresence(p domain.RoomPresence) Presence {
	out := Presence{
		Members:     make(map[string]MemberStatus, len(p.Members)),
		OnlineCount: p.OnlineCount,
		TotalCount:  p.TotalCount,
	}
	for id, m := range p.Members {
		out.Members[id] = MemberStatus{EmployeeID: m.EmployeeID, Name: m.Name, Online: m.Online}
	}
	return out
}

func ToRoom(room domain.Room, unread int, other *domain.Identity, presence *domain.RoomPresence) Room {
	out := Room{
		ID:           room.ID.String(),
		Kind:         string(room.Kind),
		Name:         room.Name,
		Description:  room.Description,
		Participants: room.Participants,
		CreatedBy:    room.CreatedBy,
		UnreadCount:  unread,
		ArchivedBy:   room.ArchivedBy,
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
	if room.LastMessage != nil {
		out.LastMessage = &LastMessage{
			MessageID: room.LastMessage.MessageID.String(),
			Text:      room.LastMessage.Text,
			SentBy:    room.LastMessage.SentBy,
			SentAt:    room.LastMessage.SentAt,
		}
	}
	if other != nil {
		u := ToUser(*other)
		out.OtherUser = &u
	}
	if presence != nil {
		p := ToPresence(*presence)
		out.Presence = &p
	}
	return out
}

func ToRoomView(view services.RoomView) Room {
	return ToRoom(view.Room, view.Unread, view.OtherUser, view.Presence)
}
