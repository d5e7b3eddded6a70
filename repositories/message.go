package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"workchat/domain"
	wcerrors "workchat/errors"
)

type IMessageRepository interface {
	Store(message domain.Message) error
	Get(messageID uuid.UUID) (domain.Message, error)
	Page(roomID uuid.UUID, page, limit int) ([]domain.Message, int, error)
	MarkRead(messageID uuid.UUID, employeeID string, at time.Time) (domain.Message, bool, error)
	MarkDelivered(messageID uuid.UUID, employeeID string) error
	MarkAllRead(roomID uuid.UUID, employeeID string, at time.Time) (int, error)
	SoftDelete(messageID uuid.UUID, at time.Time) error
	DeleteRoom(roomID uuid.UUID) ([]uuid.UUID, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type DiskReceipt struct {
	EmployeeID string    `json:"employee_id"`
	ReadAt     time.Time `json:"read_at"`
}

type DiskAttachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	Mime string `json:"mime,omitempty"`
}

type DiskMessage struct {
	ID          string          `json:"id"`
	RoomID      string          `json:"room_id"`
	SenderID    string          `json:"sender_id"`
	SenderName  string          `json:"sender_name"`
	SenderRole  string          `json:"sender_role"`
	Text        string          `json:"text"`
	Kind        string          `json:"kind"`
	Lang        string          `json:"lang,omitempty"`
	Attachment  *DiskAttachment `json:"attachment,omitempty"`
	ReadBy      []DiskReceipt   `json:"read_by,omitempty"`
	DeliveredTo []string        `json:"delivered_to,omitempty"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
	EditedAt    *time.Time      `json:"edited_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// messageKey formats "msg:{room_id}:{timestamp_padded}:{uuid}" so that:
//  1. A prefix scan per room walks messages in chronological order
//     (19-digit zero padding keeps lexicographic order correct).
//  2. The UUID disambiguates two messages landing on the same nanosecond.
func messageKey(roomID uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", roomID, at.UnixNano(), id))
}

// messageIDKey maps a message id onto its full room-ordered key, for
// point lookups (read receipts, soft deletes).
func messageIDKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func roomMessagePrefix(roomID uuid.UUID) []byte {
	return []byte("msg:" + roomID.String() + ":")
}

func (m MessageRepository) Store(message domain.Message) error {
	key := messageKey(message.RoomID, message.CreatedAt, message.ID)
	return runUpdate(m.db, func(txn *badger.Txn) error {
		if err := writeJSON(txn, key, fromMessage(message)); err != nil {
			return err
		}
		return txn.Set(messageIDKey(message.ID), key)
	})
}

func (m MessageRepository) Get(messageID uuid.UUID) (domain.Message, error) {
	var disk DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		key, err := m.resolveKey(txn, messageID)
		if err != nil {
			return err
		}
		return readJSON(txn, key, &disk)
	})
	if err != nil {
		return domain.Message{}, mapNotFound(err, wcerrors.ErrMessageNotFound)
	}
	return toMessage(disk)
}

// Page returns one page of a room's messages in chronological order.
// Pages are counted newest-first (page 1 holds the most recent "limit"
// messages) and soft-deleted messages are excluded, matching the REST
// contract. The total reflects all non-deleted messages in the room.
func (m MessageRepository) Page(roomID uuid.UUID, page, limit int) ([]domain.Message, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	var all []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := roomMessagePrefix(roomID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk DiskMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			if disk.DeletedAt != nil {
				continue
			}
			message, err := toMessage(disk)
			if err != nil {
				return err
			}
			all = append(all, message)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	end := total - (page-1)*limit
	if end <= 0 {
		return nil, total, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return all[start:end], total, nil
}

// MarkRead appends a receipt for the member; the second return value is
// false when the member already had one (at most one per member).
func (m MessageRepository) MarkRead(messageID uuid.UUID, employeeID string, at time.Time) (domain.Message, bool, error) {
	var updated domain.Message
	var added bool
	err := m.mutate(messageID, func(message *domain.Message) error {
		added = message.MarkRead(employeeID, at)
		updated = *message
		return nil
	})
	if err != nil {
		return domain.Message{}, false, err
	}
	return updated, added, nil
}

func (m MessageRepository) MarkDelivered(messageID uuid.UUID, employeeID string) error {
	return m.mutate(messageID, func(message *domain.Message) error {
		message.MarkDelivered(employeeID)
		return nil
	})
}

// MarkAllRead bulk-appends receipts to every message in the room that
// was sent by someone else and not yet read by the member. Returns how
// many messages were touched.
func (m MessageRepository) MarkAllRead(roomID uuid.UUID, employeeID string, at time.Time) (int, error) {
	var marked int
	err := runUpdate(m.db, func(txn *badger.Txn) error {
		marked = 0
		prefix := roomMessagePrefix(roomID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var disk DiskMessage
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			message, err := toMessage(disk)
			if err != nil {
				return err
			}
			if message.SenderID == employeeID || !message.MarkRead(employeeID, at) {
				continue
			}
			if err = writeJSON(txn, item.KeyCopy(nil), fromMessage(message)); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	return marked, err
}

func (m MessageRepository) SoftDelete(messageID uuid.UUID, at time.Time) error {
	return m.mutate(messageID, func(message *domain.Message) error {
		message.SoftDelete(at)
		return nil
	})
}

// DeleteRoom physically removes a room's messages and their id index
// entries, returning the removed ids so the caller can purge derived
// stores. Only cascading room deletion may do this.
func (m MessageRepository) DeleteRoom(roomID uuid.UUID) ([]uuid.UUID, error) {
	var removed []uuid.UUID
	err := runUpdate(m.db, func(txn *badger.Txn) error {
		removed = removed[:0]
		prefix := roomMessagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var disk DiskMessage
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			if id, err := uuid.Parse(disk.ID); err == nil {
				if err = txn.Delete(messageIDKey(id)); err != nil {
					return err
				}
				removed = append(removed, id)
			}
			if err = txn.Delete(item.KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (m MessageRepository) resolveKey(txn *badger.Txn, messageID uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIDKey(messageID))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (m MessageRepository) mutate(messageID uuid.UUID, fn func(*domain.Message) error) error {
	err := runUpdate(m.db, func(txn *badger.Txn) error {
		key, err := m.resolveKey(txn, messageID)
		if err != nil {
			return err
		}
		var disk DiskMessage
		if err = readJSON(txn, key, &disk); err != nil {
			return err
		}
		message, err := toMessage(disk)
		if err != nil {
			return err
		}
		if err = fn(&message); err != nil {
			return err
		}
		return writeJSON(txn, key, fromMessage(message))
	})
	return mapNotFound(err, wcerrors.ErrMessageNotFound)
}

func fromMessage(message domain.Message) DiskMessage {
	disk := DiskMessage{
		ID:          message.ID.String(),
		RoomID:      message.RoomID.String(),
		SenderID:    message.SenderID,
		SenderName:  message.SenderName,
		SenderRole:  message.SenderRole,
		Text:        message.Text,
		Kind:        string(message.Kind),
		Lang:        message.Lang,
		DeliveredTo: message.DeliveredTo,
		DeletedAt:   message.DeletedAt,
		EditedAt:    message.EditedAt,
		CreatedAt:   message.CreatedAt,
	}
	for _, r := range message.ReadBy {
		disk.ReadBy = append(disk.ReadBy, DiskReceipt{EmployeeID: r.EmployeeID, ReadAt: r.ReadAt})
	}
	if message.Attachment != nil {
		disk.Attachment = &DiskAttachment{
			URL:  message.Attachment.URL,
			Name: message.Attachment.Name,
			Size: message.Attachment.Size,
			Mime: message.Attachment.Mime,
		}
	}
	return disk
}

func toMessage(disk DiskMessage) (domain.Message, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	roomID, err := uuid.Parse(disk.RoomID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:          id,
		RoomID:      roomID,
		SenderID:    disk.SenderID,
		SenderName:  disk.SenderName,
		SenderRole:  disk.SenderRole,
		Text:        disk.Text,
		Kind:        domain.MessageKind(disk.Kind),
		Lang:        disk.Lang,
		DeliveredTo: disk.DeliveredTo,
		DeletedAt:   disk.DeletedAt,
		EditedAt:    disk.EditedAt,
		CreatedAt:   disk.CreatedAt,
	}
	for _, r := range disk.ReadBy {
		message.ReadBy = append(message.ReadBy, domain.ReadReceipt{EmployeeID: r.EmployeeID, ReadAt: r.ReadAt})
	}
	if disk.Attachment != nil {
		message.Attachment = &domain.Attachment{
			URL:  disk.Attachment.URL,
			Name: disk.Attachment.Name,
			Size: disk.Attachment.Size,
			Mime: disk.Attachment.Mime,
		}
	}
	return message, nil
}
