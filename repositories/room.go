package repositories

import (
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"workchat/domain"
	wcerrors "workchat/errors"
)

type IRoomRepository interface {
	Create(room domain.Room) error
	Get(id uuid.UUID) (domain.Room, error)
	Update(id uuid.UUID, fn func(*domain.Room) error) (domain.Room, error)
	Delete(id uuid.UUID) error
	ListForMember(employeeID string) ([]domain.Room, error)
	FindDirect(idA, idB string) (domain.Room, bool, error)
	FindGroup(name string, participants []string) (domain.Room, bool, error)
}

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

type DiskLastMessage struct {
	MessageID string    `json:"message_id"`
	Text      string    `json:"text"`
	SentBy    string    `json:"sent_by"`
	SentAt    time.Time `json:"sent_at"`
}

type DiskRoom struct {
	ID           string           `json:"id"`
	Kind         string           `json:"kind"`
	Name         string           `json:"name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Participants []string         `json:"participants"`
	CreatedBy    string           `json:"created_by"`
	LastMessage  *DiskLastMessage `json:"last_message,omitempty"`
	UnreadCount  map[string]int   `json:"unread_count,omitempty"`
	ArchivedBy   []string         `json:"archived_by,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func roomKey(id uuid.UUID) []byte {
	return []byte("room:" + id.String())
}

// memberKey is the membership index entry used to list a person's rooms
// without scanning the whole room keyspace.
func memberKey(employeeID string, roomID uuid.UUID) []byte {
	return []byte("member:" + employeeID + ":" + roomID.String())
}

func (r RoomRepository) Create(room domain.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	return runUpdate(r.db, func(txn *badger.Txn) error {
		if err := writeJSON(txn, roomKey(room.ID), fromRoom(room)); err != nil {
			return err
		}
		for _, p := range room.Participants {
			if err := txn.Set(memberKey(p, room.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r RoomRepository) Get(id uuid.UUID) (domain.Room, error) {
	var disk DiskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, roomKey(id), &disk)
	})
	if err != nil {
		return domain.Room{}, mapNotFound(err, wcerrors.ErrRoomNotFound)
	}
	return toRoom(disk)
}

// Update applies fn atomically and reconciles the membership index with
// any participant-set change, in the same transaction. Unread counter
// mutations always go through here so racing senders can't lose an
// increment.
func (r RoomRepository) Update(id uuid.UUID, fn func(*domain.Room) error) (domain.Room, error) {
	var updated domain.Room
	err := runUpdate(r.db, func(txn *badger.Txn) error {
		var disk DiskRoom
		if err := readJSON(txn, roomKey(id), &disk); err != nil {
			return err
		}
		room, err := toRoom(disk)
		if err != nil {
			return err
		}
		before := room.Participants
		if err = fn(&room); err != nil {
			return err
		}
		room.UpdatedAt = time.Now().UTC()
		updated = room
		if err = writeJSON(txn, roomKey(id), fromRoom(room)); err != nil {
			return err
		}
		for _, gone := range lo.Without(before, room.Participants...) {
			if err = txn.Delete(memberKey(gone, id)); err != nil {
				return err
			}
		}
		for _, added := range lo.Without(room.Participants, before...) {
			if err = txn.Set(memberKey(added, id), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, mapNotFound(err, wcerrors.ErrRoomNotFound)
	}
	return updated, nil
}

func (r RoomRepository) Delete(id uuid.UUID) error {
	return runUpdate(r.db, func(txn *badger.Txn) error {
		var disk DiskRoom
		if err := readJSON(txn, roomKey(id), &disk); err != nil {
			return mapNotFound(err, wcerrors.ErrRoomNotFound)
		}
		for _, p := range disk.Participants {
			if err := txn.Delete(memberKey(p, id)); err != nil {
				return err
			}
		}
		return txn.Delete(roomKey(id))
	})
}

func (r RoomRepository) ListForMember(employeeID string) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("member:" + employeeID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			roomID := string(it.Item().Key()[len(prefix):])
			id, err := uuid.Parse(roomID)
			if err != nil {
				continue
			}
			var disk DiskRoom
			if err = readJSON(txn, roomKey(id), &disk); err != nil {
				// A dangling index entry; skip rather than fail the listing.
				r.log.Warn("membership index points at missing room", "room_id", roomID)
				continue
			}
			room, err := toRoom(disk)
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Most recently active conversations first.
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

// FindDirect locates the direct room holding exactly {idA, idB},
// order-independent.
func (r RoomRepository) FindDirect(idA, idB string) (domain.Room, bool, error) {
	rooms, err := r.ListForMember(idA)
	if err != nil {
		return domain.Room{}, false, err
	}
	for _, room := range rooms {
		if room.Kind == domain.RoomDirect && samePair(room.Participants, idA, idB) {
			return room, true, nil
		}
	}
	return domain.Room{}, false, nil
}

// FindGroup locates a group with identical name and exact participant set.
func (r RoomRepository) FindGroup(name string, participants []string) (domain.Room, bool, error) {
	if len(participants) == 0 {
		return domain.Room{}, false, nil
	}
	rooms, err := r.ListForMember(participants[0])
	if err != nil {
		return domain.Room{}, false, err
	}
	want := sortedCopy(participants)
	for _, room := range rooms {
		if room.Kind != domain.RoomGroup || room.Name != name {
			continue
		}
		if slices.Equal(sortedCopy(room.Participants), want) {
			return room, true, nil
		}
	}
	return domain.Room{}, false, nil
}

func samePair(participants []string, idA, idB string) bool {
	return len(participants) == 2 &&
		lo.Contains(participants, idA) &&
		lo.Contains(participants, idB)
}

func sortedCopy(ids []string) []string {
	out := lo.Uniq(ids)
	sort.Strings(out)
	return out
}

func fromRoom(room domain.Room) DiskRoom {
	disk := DiskRoom{
		ID:           room.ID.String(),
		Kind:         string(room.Kind),
		Name:         room.Name,
		Description:  room.Description,
		Participants: room.Participants,
		CreatedBy:    room.CreatedBy,
		UnreadCount:  room.UnreadCount,
		ArchivedBy:   room.ArchivedBy,
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}
	if room.LastMessage != nil {
		disk.LastMessage = &DiskLastMessage{
			MessageID: room.LastMessage.MessageID.String(),
			Text:      room.LastMessage.Text,
			SentBy:    room.LastMessage.SentBy,
			SentAt:    room.LastMessage.SentAt,
		}
	}
	return disk
}

func toRoom(disk DiskRoom) (domain.Room, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Room{}, err
	}
	room := domain.Room{
		ID:           id,
		Kind:         domain.RoomKind(disk.Kind),
		Name:         disk.Name,
		Description:  disk.Description,
		Participants: disk.Participants,
		CreatedBy:    disk.CreatedBy,
		UnreadCount:  disk.UnreadCount,
		ArchivedBy:   disk.ArchivedBy,
		CreatedAt:    disk.CreatedAt,
		UpdatedAt:    disk.UpdatedAt,
	}
	if room.UnreadCount == nil {
		room.UnreadCount = make(map[string]int)
	}
	if disk.LastMessage != nil {
		messageID, err := uuid.Parse(disk.LastMessage.MessageID)
		if err != nil {
			return domain.Room{}, err
		}
		room.LastMessage = &domain.LastMessage{
			MessageID: messageID,
			Text:      disk.LastMessage.Text,
			SentBy:    disk.LastMessage.SentBy,
			SentAt:    disk.LastMessage.SentAt,
		}
	}
	return room, nil
}
