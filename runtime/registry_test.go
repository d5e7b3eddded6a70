package runtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"workchat/domain/event"
)

type stubSink struct{ id string }

func (s *stubSink) Consume(context.Context, event.DomainEvent) error { return nil }

func Test_Registry_Register_And_Lookup(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	a1 := &stubSink{id: "a1"}
	a2 := &stubSink{id: "a2"}
	b1 := &stubSink{id: "b1"}
	reg.Register("session-a1", "1001", a1)
	reg.Register("session-a2", "1001", a2)
	reg.Register("session-b1", "2002", b1)

	employeeID, ok := reg.IdentityOf("session-a1")
	req.True(ok)
	req.Equal("1001", employeeID)
	_, ok = reg.IdentityOf("session-x")
	req.False(ok)

	req.Len(reg.SinksForIdentity("1001"), 2)
	req.Len(reg.SinksForIdentity("2002"), 1)
	req.Len(reg.AllSinks(), 3)
}

func Test_Registry_Rebind_Detaches_Previous_Identity(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	sink := &stubSink{id: "shared"}

	reg.Register("session-1", "1001", sink)
	reg.Register("session-1", "2002", sink)

	// The socket belongs to 2002 now; 1001 must not reach it anymore.
	req.Empty(reg.SinksForIdentity("1001"))
	req.Len(reg.SinksForIdentity("2002"), 1)

	employeeID, ok := reg.IdentityOf("session-1")
	req.True(ok)
	req.Equal("2002", employeeID)
	req.Len(reg.AllSinks(), 1)
}

func Test_Registry_Room_Subscriptions(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	roomID := uuid.New()

	reg.Register("session-a1", "1001", &stubSink{id: "a1"})
	reg.Register("session-b1", "2002", &stubSink{id: "b1"})
	reg.Subscribe("session-a1", roomID)
	reg.Subscribe("session-b1", roomID)

	req.Len(reg.SinksForRoom(roomID), 2)
	req.Len(reg.SinksForRoomExcept(roomID, "session-a1"), 1)

	reg.Unsubscribe("session-b1", roomID)
	req.Len(reg.SinksForRoom(roomID), 1)

	// Subscribing a room never seen before and an unknown session must
	// not leak into delivery.
	req.Empty(reg.SinksForRoom(uuid.New()))
}

func Test_Registry_Unregister_Cleans_Everything(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	roomID := uuid.New()

	reg.Register("session-a1", "1001", &stubSink{id: "a1"})
	reg.Subscribe("session-a1", roomID)

	employeeID, ok := reg.Unregister("session-a1")
	req.True(ok)
	req.Equal("1001", employeeID)

	req.Empty(reg.SinksForIdentity("1001"))
	req.Empty(reg.SinksForRoom(roomID))
	req.Empty(reg.AllSinks())

	// A second teardown for the same session reports the miss.
	_, ok = reg.Unregister("session-a1")
	req.False(ok)
}
