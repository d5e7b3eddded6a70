package services

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"workchat/auth"
	"workchat/domain/event"
	"workchat/moderation"
	"workchat/notifications"
	"workchat/repositories"
	"workchat/runtime"
	"workchat/search"
)

// captureSink records the events delivered to one session.
type captureSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (c *captureSink) Consume(_ context.Context, evt event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureSink) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		names = append(names, evt.EventName())
	}
	return names
}

func (c *captureSink) count(name string) int {
	total := 0
	for _, n := range c.names() {
		if n == name {
			total++
		}
	}
	return total
}

func (c *captureSink) last(name string) event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].EventName() == name {
			return c.events[i]
		}
	}
	return nil
}

type testEnv struct {
	identities *IdentityService
	presence   *PresenceService
	rooms      *RoomService
	chat       *ChatService
	registry   *runtime.Registry
	pushJobs   chan notifications.Job
	roomRepo   repositories.RoomRepository
	msgRepo    repositories.MessageRepository
	idRepo     repositories.IdentityRepository
	logBuf     *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	req := require.New(t)
	logBuf := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(logBuf, nil))

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	index, err := search.OpenInMemory(log)
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })

	moderator, err := moderation.NewModerator([]string{"fudge"}, '*')
	req.NoError(err)

	idRepo := repositories.NewIdentityRepository(db, log)
	roomRepo := repositories.NewRoomRepository(db, log)
	msgRepo := repositories.NewMessageRepository(db, log)

	registry := runtime.NewRegistry()
	tokens := auth.NewTokenService("test-secret", time.Hour)
	pushJobs := make(chan notifications.Job, 16)

	identityService := NewIdentityService(idRepo, tokens, log)
	presenceService := NewPresenceService(identityService, idRepo, roomRepo, registry, log)
	roomService := NewRoomService(identityService, presenceService, roomRepo, msgRepo, index, registry, log)
	chatService := NewChatService(identityService, presenceService, roomRepo, msgRepo,
		moderator, index, registry, pushJobs, log)

	return &testEnv{
		identities: identityService,
		presence:   presenceService,
		rooms:      roomService,
		chat:       chatService,
		registry:   registry,
		pushJobs:   pushJobs,
		roomRepo:   roomRepo,
		msgRepo:    msgRepo,
		idRepo:     idRepo,
		logBuf:     logBuf,
	}
}

// syncPair provisions the two canonical test profiles: Alice with
// employee id 1001 and login adurand, Bob with 2002 and bmartin.
func (e *testEnv) syncPair(t *testing.T) {
	t.Helper()
	req := require.New(t)
	_, _, err := e.identities.Sync(SyncProfile{
		EmployeeID: "1001", LoginID: "adurand", Name: "Alice Durand", Role: "manager",
	})
	req.NoError(err)
	_, _, err = e.identities.Sync(SyncProfile{
		EmployeeID: "2002", LoginID: "bmartin", Name: "Bob Martin",
	})
	req.NoError(err)
}

// connect registers a capture sink for an identifier and returns it
// with the generated session id.
func (e *testEnv) connect(t *testing.T, id, sessionID string) *captureSink {
	t.Helper()
	sink := &captureSink{}
	_, err := e.presence.Connect(context.Background(), id, sessionID, sink)
	require.NoError(t, err)
	return sink
}
