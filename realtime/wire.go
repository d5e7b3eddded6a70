package realtime

import (
	"encoding/json"

	"workchat/domain/event"
	"workchat/dto"
)

// Frame is the envelope of every websocket exchange, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEvent maps a domain event onto its wire frame.
func encodeEvent(evt event.DomainEvent) (Frame, error) {
	var payload any
	switch e := evt.(type) {
	case event.NewMessage:
		payload = dto.ToMessage(e.Message)
	case event.RoomUpdated:
		payload = dto.ToRoom(e.Room, e.Unread, e.OtherUser, e.Presence)
	case event.RoomCreated:
		payload = dto.ToRoom(e.Room, 0, nil, nil)
	case event.UserStatus:
		payload = map[string]any{"userId": e.EmployeeID, "isOnline": e.Online}
	case event.Typing:
		payload = map[string]any{
			"roomId":   e.RoomID.String(),
			"userId":   e.EmployeeID,
			"name":     e.Name,
			"isTyping": e.IsTyping,
		}
	case event.MessageRead:
		payload = map[string]any{
			"roomId":    e.RoomID.String(),
			"messageId": e.MessageID.String(),
			"userId":    e.EmployeeID,
		}
	case event.MessagesRead:
		payload = map[string]any{
			"roomId": e.RoomID.String(),
			"userId": e.EmployeeID,
			"readAt": e.ReadAt,
			"count":  e.Count,
		}
	default:
		payload = e
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: evt.EventName(), Data: data}, nil
}
