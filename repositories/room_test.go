package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"workchat/domain"
	wcerrors "workchat/errors"
)

func newDirectRoom(idA, idB string) domain.Room {
	now := time.Now().UTC()
	return domain.Room{
		ID:           uuid.New(),
		Kind:         domain.RoomDirect,
		Participants: []string{idA, idB},
		CreatedBy:    idA,
		UnreadCount:  map[string]int{idA: 0, idB: 0},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newGroupRoom(name string, members ...string) domain.Room {
	now := time.Now().UTC()
	counters := make(map[string]int, len(members))
	for _, m := range members {
		counters[m] = 0
	}
	return domain.Room{
		ID:           uuid.New(),
		Kind:         domain.RoomGroup,
		Name:         name,
		Participants: members,
		CreatedBy:    members[0],
		UnreadCount:  counters,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func Test_Room_Create_And_Get(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	room := newDirectRoom("1001", "1002")
	req.NoError(repository.Create(room))

	fetched, err := repository.Get(room.ID)
	req.NoError(err)
	req.Equal(room.Participants, fetched.Participants)
	req.Equal(domain.RoomDirect, fetched.Kind)
}

func Test_Room_Create_Rejects_Invalid(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	invalid := newDirectRoom("1001", "1001")
	req.ErrorIs(repository.Create(invalid), wcerrors.ErrSelfChat)
}

func Test_Room_ListForMember_Uses_Index(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	req.NoError(repository.Create(newDirectRoom("1001", "1002")))
	req.NoError(repository.Create(newDirectRoom("1001", "1003")))
	req.NoError(repository.Create(newDirectRoom("1002", "1003")))

	rooms, err := repository.ListForMember("1001")
	req.NoError(err)
	req.Len(rooms, 2)

	rooms, err = repository.ListForMember("1004")
	req.NoError(err)
	req.Empty(rooms)
}

func Test_Room_FindDirect_Is_Order_Independent(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	room := newDirectRoom("1001", "1002")
	req.NoError(repository.Create(room))

	found, ok, err := repository.FindDirect("1002", "1001")
	req.NoError(err)
	req.True(ok)
	req.Equal(room.ID, found.ID)

	_, ok, err = repository.FindDirect("1001", "1003")
	req.NoError(err)
	req.False(ok)
}

func Test_Room_FindGroup_Exact_Member_Set(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	room := newGroupRoom("Sales Team", "1001", "1002", "1003")
	req.NoError(repository.Create(room))

	// Same name, same members in a different order: the same group.
	found, ok, err := repository.FindGroup("Sales Team", []string{"1003", "1001", "1002"})
	req.NoError(err)
	req.True(ok)
	req.Equal(room.ID, found.ID)

	// Same name but a different member set is another group.
	_, ok, err = repository.FindGroup("Sales Team", []string{"1001", "1002"})
	req.NoError(err)
	req.False(ok)
}

func Test_Room_Update_Reconciles_Member_Index(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	room := newGroupRoom("Sales Team", "1001", "1002", "1003")
	req.NoError(repository.Create(room))

	_, err := repository.Update(room.ID, func(r *domain.Room) error {
		r.RemoveParticipant("1003")
		r.AddParticipant("1004")
		return nil
	})
	req.NoError(err)

	rooms, err := repository.ListForMember("1003")
	req.NoError(err)
	req.Empty(rooms)

	rooms, err = repository.ListForMember("1004")
	req.NoError(err)
	req.Len(rooms, 1)
}

func Test_Room_Update_Unread_Increments_Survive_Reload(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	room := newDirectRoom("1001", "1002")
	req.NoError(repository.Create(room))

	for i := 0; i < 5; i++ {
		_, err := repository.Update(room.ID, func(r *domain.Room) error {
			r.IncrementUnread("1002")
			return nil
		})
		req.NoError(err)
	}

	fetched, err := repository.Get(room.ID)
	req.NoError(err)
	req.Equal(5, fetched.UnreadFor("1002"))
	req.Equal(0, fetched.UnreadFor("1001"))
}

func Test_Room_Delete_Removes_Index_Entries(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	room := newDirectRoom("1001", "1002")
	req.NoError(repository.Create(room))
	req.NoError(repository.Delete(room.ID))

	_, err := repository.Get(room.ID)
	req.ErrorIs(err, wcerrors.ErrRoomNotFound)

	rooms, err := repository.ListForMember("1001")
	req.NoError(err)
	req.Empty(rooms)
}
