package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"workchat/domain/event"
)

func Test_Connect_Broadcasts_Only_On_Transition(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.syncPair(t)

	aliceSink := env.connect(t, "1001", "session-a1")
	req.Zero(aliceSink.count("user-status"))

	// Bob comes online: every connected session hears about it once.
	env.connect(t, "2002", "session-b1")
	req.Equal(1, aliceSink.count("user-status"))

	status, ok := aliceSink.last("user-status").(event.UserStatus)
	req.True(ok)
	req.Equal("2002", status.EmployeeID)
	req.True(status.Online)

	// A second device for an already online person is silent.
	env.connect(t, "bmartin", "session-b2")
	req.Equal(1, aliceSink.count("user-status"))

	identity, err := env.idRepo.Get("2002")
	req.NoError(err)
	req.True(identity.Online)
	req.Equal("session-b2", identity.SessionID)
}

func Test_Disconnect_Ignores_Superseded_Session(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.syncPair(t)
	ctx := context.Background()

	aliceSink := env.connect(t, "1001", "session-a1")
	env.connect(t, "2002", "session-b1")
	env.connect(t, "2002", "session-b2")

	// The old socket closes after the reconnect: still online.
	env.presence.Disconnect(ctx, "session-b1")
	identity, err := env.idRepo.Get("2002")
	req.NoError(err)
	req.True(identity.Online)

	// The current session going away flips the person offline.
	env.presence.Disconnect(ctx, "session-b2")
	identity, err = env.idRepo.Get("2002")
	req.NoError(err)
	req.False(identity.Online)
	req.False(identity.LastSeen.IsZero())

	status, ok := aliceSink.last("user-status").(event.UserStatus)
	req.True(ok)
	req.Equal("2002", status.EmployeeID)
	req.False(status.Online)
}

func Test_Disconnect_Unknown_Session_Is_Noop(t *testing.T) {
	env := newTestEnv(t)
	env.syncPair(t)

	// Must not panic or broadcast anything.
	env.presence.Disconnect(context.Background(), "never-registered")
}

func Test_Rebind_Session_Releases_Previous_Identity(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.syncPair(t)

	env.connect(t, "1001", "session-shared")
	env.connect(t, "2002", "session-shared")

	// The socket belongs to Bob now: Alice stops receiving on it and
	// her persisted state flips offline.
	req.Empty(env.registry.SinksForIdentity("1001"))
	req.Len(env.registry.SinksForIdentity("2002"), 1)

	alice, err := env.idRepo.Get("1001")
	req.NoError(err)
	req.False(alice.Online)

	bob, err := env.idRepo.Get("2002")
	req.NoError(err)
	req.True(bob.Online)
	req.Equal("session-shared", bob.SessionID)
}

func Test_Transition_Refreshes_Group_Presence(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.syncPair(t)
	ctx := context.Background()

	group, _, err := env.rooms.CreateGroup(ctx, "1001", "Sales", "", []string{"2002", "3003"})
	req.NoError(err)

	aliceSink := env.connect(t, "1001", "session-a1")
	aliceSink.mu.Lock()
	aliceSink.events = nil
	aliceSink.mu.Unlock()

	env.connect(t, "3003", "session-c1")

	req.Equal(1, aliceSink.count("room-updated"))
	updated, ok := aliceSink.last("room-updated").(event.RoomUpdated)
	req.True(ok)
	req.Equal(group.ID, updated.Room.ID)
	req.NotNil(updated.Presence)
	req.Equal(2, updated.Presence.TotalCount)
	req.Equal(1, updated.Presence.OnlineCount)
	req.True(updated.Presence.Members["3003"].Online)
	req.NotContains(updated.Presence.Members, "1001")
}

func Test_RoomPresence_Counts_Exclude_Viewer(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.syncPair(t)
	ctx := context.Background()

	group, _, err := env.rooms.CreateGroup(ctx, "1001", "Sales", "", []string{"2002", "3003"})
	req.NoError(err)
	env.connect(t, "1001", "session-a1")

	room, err := env.roomRepo.Get(group.ID)
	req.NoError(err)

	// Bob's view: Alice online, Clara offline, Bob absent from the map.
	presence, err := env.presence.RoomPresence("2002", room)
	req.NoError(err)
	req.Equal(2, presence.TotalCount)
	req.Equal(1, presence.OnlineCount)
	req.True(presence.Members["1001"].Online)
	req.False(presence.Members["3003"].Online)
}
