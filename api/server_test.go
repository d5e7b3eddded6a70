package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"workchat/auth"
	"workchat/moderation"
	"workchat/notifications"
	"workchat/repositories"
	"workchat/runtime"
	"workchat/search"
	"workchat/services"
)

const testSyncKey = "hr-sync-key"

type apiEnv struct {
	mux        *http.ServeMux
	identities services.IIdentityService
	rooms      services.IRoomService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

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

	identityService := services.NewIdentityService(idRepo, tokens, log)
	presenceService := services.NewPresenceService(identityService, idRepo, roomRepo, registry, log)
	roomService := services.NewRoomService(identityService, presenceService, roomRepo, msgRepo, index, registry, log)
	chatService := services.NewChatService(identityService, presenceService, roomRepo, msgRepo,
		moderator, index, registry, pushJobs, log)

	keyHash, err := auth.HashAPIKey(testSyncKey)
	req.NoError(err)

	server := NewServer(identityService, roomService, chatService, tokens, keyHash, log)
	return &apiEnv{mux: server.Routes(), identities: identityService, rooms: roomService}
}

func (e *apiEnv) do(t *testing.T, method, path, subject string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if subject != "" {
		r.Header.Set("X-User-Id", subject)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func (e *apiEnv) syncPair(t *testing.T) {
	t.Helper()
	req := require.New(t)
	_, _, err := e.identities.Sync(services.SyncProfile{
		EmployeeID: "1001", LoginID: "adurand", Name: "Alice Durand", Role: "manager",
	})
	req.NoError(err)
	_, _, err = e.identities.Sync(services.SyncProfile{
		EmployeeID: "2002", LoginID: "bmartin", Name: "Bob Martin",
	})
	req.NoError(err)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func Test_SyncUser_Requires_API_Key(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)
	payload := map[string]string{"employeeId": "1001", "name": "Alice Durand"}

	w := env.do(t, http.MethodPost, "/api/users/sync", "", payload)
	req.Equal(http.StatusUnauthorized, w.Code)

	var buf bytes.Buffer
	req.NoError(json.NewEncoder(&buf).Encode(payload))
	r := httptest.NewRequest(http.MethodPost, "/api/users/sync", &buf)
	r.Header.Set("X-Api-Key", "wrong-key")
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	req.Equal(http.StatusUnauthorized, w.Code)

	buf.Reset()
	req.NoError(json.NewEncoder(&buf).Encode(payload))
	r = httptest.NewRequest(http.MethodPost, "/api/users/sync", &buf)
	r.Header.Set("X-Api-Key", testSyncKey)
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	req.Equal(http.StatusOK, w.Code)

	body := decodeBody(t, w)
	req.NotEmpty(body["token"])
	user, ok := body["user"].(map[string]any)
	req.True(ok)
	req.Equal("1001", user["employeeId"])
}

func Test_Bearer_Token_Identifies_Subject(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)

	var buf bytes.Buffer
	req.NoError(json.NewEncoder(&buf).Encode(map[string]string{
		"employeeId": "1001", "loginId": "adurand", "name": "Alice Durand",
	}))
	r := httptest.NewRequest(http.MethodPost, "/api/users/sync", &buf)
	r.Header.Set("X-Api-Key", testSyncKey)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	req.Equal(http.StatusOK, w.Code)
	token, _ := decodeBody(t, w)["token"].(string)
	req.NotEmpty(token)

	r = httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	req.Equal(http.StatusOK, w.Code)
	rooms, ok := decodeBody(t, w)["rooms"].([]any)
	req.True(ok)
	req.Empty(rooms)
}

func Test_Room_And_Message_Round_Trip(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)
	env.syncPair(t)

	// First create returns 201, the idempotent repeat 200.
	w := env.do(t, http.MethodPost, "/api/rooms", "adurand",
		map[string]string{"type": "direct", "participant": "bmartin"})
	req.Equal(http.StatusCreated, w.Code)
	room := decodeBody(t, w)
	roomID, _ := room["id"].(string)
	req.NotEmpty(roomID)
	otherUser, ok := room["otherUser"].(map[string]any)
	req.True(ok)
	req.Equal("2002", otherUser["employeeId"])

	w = env.do(t, http.MethodPost, "/api/rooms", "1001",
		map[string]string{"type": "direct", "participant": "2002"})
	req.Equal(http.StatusOK, w.Code)
	req.Equal(roomID, decodeBody(t, w)["id"])

	w = env.do(t, http.MethodPost, "/api/messages", "1001",
		map[string]string{"roomId": roomID, "text": "hello from rest"})
	req.Equal(http.StatusCreated, w.Code)
	messageID, _ := decodeBody(t, w)["id"].(string)
	req.NotEmpty(messageID)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%s/messages", roomID), "2002", nil)
	req.Equal(http.StatusOK, w.Code)
	page := decodeBody(t, w)
	req.EqualValues(1, page["total"])

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/rooms/%s/read", roomID), "bmartin", nil)
	req.Equal(http.StatusOK, w.Code)
	req.EqualValues(1, decodeBody(t, w)["marked"])

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%s", roomID), "2002", nil)
	req.Equal(http.StatusOK, w.Code)
	req.EqualValues(0, decodeBody(t, w)["unreadCount"])
}

func Test_Error_Mapping(t *testing.T) {
	req := require.New(t)
	env := newAPIEnv(t)
	env.syncPair(t)

	// Unknown room id: 404.
	w := env.do(t, http.MethodGet, "/api/rooms/"+uuid.NewString(), "1001", nil)
	req.Equal(http.StatusNotFound, w.Code)

	// Outsider sending into someone else's room: 403.
	room, _, err := env.rooms.CreateDirect(t.Context(), "1001", "2002")
	req.NoError(err)
	_, err = env.identities.ResolveOrProvision("4004")
	req.NoError(err)
	w = env.do(t, http.MethodPost, "/api/messages", "4004",
		map[string]string{"roomId": room.ID.String(), "text": "hi"})
	req.Equal(http.StatusForbidden, w.Code)

	// Malformed payload: 400.
	w = env.do(t, http.MethodPost, "/api/rooms", "1001",
		map[string]string{"type": "triangle"})
	req.Equal(http.StatusBadRequest, w.Code)

	// Missing caller identifier: 400.
	w = env.do(t, http.MethodGet, "/api/rooms", "", nil)
	req.Equal(http.StatusBadRequest, w.Code)

	// Unknown person: 404.
	w = env.do(t, http.MethodGet, "/api/users/ghost", "1001", nil)
	req.Equal(http.StatusNotFound, w.Code)
}
