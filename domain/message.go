// Messages are immutable once persisted, except for append-only
// read-receipt/delivered-to growth and the two nullable timestamps.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

// Attachment carries file metadata for image/file messages.
type Attachment struct {
	URL  string
	Name string
	Size int64
	Mime string
}

// ReadReceipt records one member reading a message; at most one entry
// per member may exist on a message.
type ReadReceipt struct {
	EmployeeID string
	ReadAt     time.Time
}

type Message struct {
	ID     uuid.UUID
	RoomID uuid.UUID

	SenderID string
	// Sender display fields are snapshotted at send time so history
	// survives later profile changes.
	SenderName string
	SenderRole string

	Text       string
	Kind       MessageKind
	Lang       string
	Attachment *Attachment

	ReadBy      []ReadReceipt
	DeliveredTo []string

	DeletedAt *time.Time
	EditedAt  *time.Time

	CreatedAt time.Time
}

// MarkRead appends a receipt for the member, once.
// Returns false when the member already had one.
func (m *Message) MarkRead(employeeID string, at time.Time) bool {
	already := lo.ContainsBy(m.ReadBy, func(r ReadReceipt) bool {
		return r.EmployeeID == employeeID
	})
	if already {
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{EmployeeID: employeeID, ReadAt: at})
	return true
}

// MarkDelivered records delivery to a member, once.
func (m *Message) MarkDelivered(employeeID string) bool {
	if lo.Contains(m.DeliveredTo, employeeID) {
		return false
	}
	m.DeliveredTo = append(m.DeliveredTo, employeeID)
	return true
}

// SoftDelete stamps the message as deleted without removing it.
func (m *Message) SoftDelete(at time.Time) {
	m.DeletedAt = &at
}
