package notifications_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"workchat/domain"
	wcerrors "workchat/errors"
	"workchat/mocks"
	"workchat/notifications"
	"workchat/repositories"
)

func newDispatcherEnv(t *testing.T) (*notifications.Dispatcher, *mocks.MockPushGateway, repositories.IdentityRepository) {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	identities := repositories.NewIdentityRepository(db, log)
	gateway := mocks.NewMockPushGateway(gomock.NewController(t))
	return notifications.NewDispatcher(gateway, identities, log), gateway, identities
}

func putRecipient(t *testing.T, identities repositories.IdentityRepository, tokens ...string) {
	t.Helper()
	require.NoError(t, identities.Put(domain.Identity{
		EmployeeID: "1001",
		Name:       "Alice Durand",
		PushTokens: tokens,
		CreatedAt:  time.Now().UTC(),
	}))
}

func Test_Dispatch_Delivers_To_Every_Token(t *testing.T) {
	req := require.New(t)
	dispatcher, gateway, identities := newDispatcherEnv(t)
	putRecipient(t, identities, "device-1", "device-2")

	gateway.EXPECT().Send(gomock.Any(), "device-1", gomock.Any()).Return(nil)
	gateway.EXPECT().Send(gomock.Any(), "device-2", gomock.Any()).Return(nil)

	result, err := dispatcher.Dispatch(context.Background(), notifications.Job{RecipientID: "1001"})
	req.NoError(err)
	req.Equal(2, result.Attempted)
	req.Equal(2, result.Delivered)
	req.Empty(result.InvalidTokens)
}

func Test_Dispatch_Without_Tokens_Is_Noop(t *testing.T) {
	req := require.New(t)
	dispatcher, _, identities := newDispatcherEnv(t)
	putRecipient(t, identities)

	result, err := dispatcher.Dispatch(context.Background(), notifications.Job{RecipientID: "1001"})
	req.NoError(err)
	req.Zero(result.Attempted)
}

func Test_Dispatch_Prunes_Invalid_Tokens(t *testing.T) {
	req := require.New(t)
	dispatcher, gateway, identities := newDispatcherEnv(t)
	putRecipient(t, identities, "dead", "device-2")

	gateway.EXPECT().Send(gomock.Any(), "dead", gomock.Any()).Return(wcerrors.ErrTokenInvalid)
	gateway.EXPECT().Send(gomock.Any(), "device-2", gomock.Any()).Return(nil)

	result, err := dispatcher.Dispatch(context.Background(), notifications.Job{RecipientID: "1001"})
	req.NoError(err)
	req.Equal(1, result.Delivered)
	req.Equal([]string{"dead"}, result.InvalidTokens)

	identity, err := identities.Get("1001")
	req.NoError(err)
	req.Equal([]string{"device-2"}, identity.PushTokens)
}

func Test_Dispatch_Credential_Failure_Suspends(t *testing.T) {
	req := require.New(t)
	dispatcher, gateway, identities := newDispatcherEnv(t)
	putRecipient(t, identities, "device-1", "device-2")

	// One credential rejection stops the loop mid recipient.
	gateway.EXPECT().Send(gomock.Any(), "device-1", gomock.Any()).Return(wcerrors.ErrGatewayCredentials)

	_, err := dispatcher.Dispatch(context.Background(), notifications.Job{RecipientID: "1001"})
	req.ErrorIs(err, wcerrors.ErrGatewayCredentials)
	req.True(dispatcher.Degraded())

	// While degraded the gateway is never called again.
	_, err = dispatcher.Dispatch(context.Background(), notifications.Job{RecipientID: "1001"})
	req.ErrorIs(err, wcerrors.ErrGatewayCredentials)

	dispatcher.Reset()
	req.False(dispatcher.Degraded())
	gateway.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	result, err := dispatcher.Dispatch(context.Background(), notifications.Job{RecipientID: "1001"})
	req.NoError(err)
	req.Equal(2, result.Delivered)
}

func Test_Dispatch_Transient_Failure_Keeps_Token(t *testing.T) {
	req := require.New(t)
	dispatcher, gateway, identities := newDispatcherEnv(t)
	putRecipient(t, identities, "device-1")

	gateway.EXPECT().Send(gomock.Any(), "device-1", gomock.Any()).Return(context.DeadlineExceeded)

	result, err := dispatcher.Dispatch(context.Background(), notifications.Job{RecipientID: "1001"})
	req.NoError(err)
	req.Zero(result.Delivered)
	req.Empty(result.InvalidTokens)

	identity, err := identities.Get("1001")
	req.NoError(err)
	req.Equal([]string{"device-1"}, identity.PushTokens)
}

func Test_BuildMessagePayload_Shapes(t *testing.T) {
	req := require.New(t)

	roomID := uuid.New()
	message := domain.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderID:   "1001",
		SenderName: "Alice Durand",
		Text:       "lunch?",
	}
	direct := domain.Room{ID: roomID, Kind: domain.RoomDirect, Participants: []string{"1001", "2002"}}
	group := domain.Room{ID: roomID, Kind: domain.RoomGroup, Name: "Sales", Participants: []string{"1001", "2002"}}

	payload := notifications.BuildMessagePayload(message, direct, 4)
	req.Equal("Alice Durand", payload.Title)
	req.Equal("lunch?", payload.Body)
	req.Equal(4, payload.Badge)
	req.Equal(roomID.String(), payload.Data["roomId"])
	req.Equal("direct", payload.Data["roomType"])

	payload = notifications.BuildMessagePayload(message, group, 1)
	req.Equal("Alice Durand in Sales", payload.Title)

	message.Text = strings.Repeat("x", 150)
	payload = notifications.BuildMessagePayload(message, direct, 0)
	req.Len([]rune(payload.Body), 103)
	req.True(strings.HasSuffix(payload.Body, "..."))
}
