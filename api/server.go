// Package api is the REST fallback surface. Every mutating endpoint
// runs through the same services as the realtime path, so both surfaces
// enforce identical authorization and accounting rules.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"workchat/auth"
	wcerrors "workchat/errors"
	"workchat/services"
)

type Server struct {
	identityService services.IIdentityService
	roomService     services.IRoomService
	chatService     services.IChatService
	tokens          auth.TokenService
	syncKeyHash     string
	validate        *validator.Validate
	log             *slog.Logger
}

func NewServer(identityService services.IIdentityService, roomService services.IRoomService,
	chatService services.IChatService, tokens auth.TokenService,
	syncKeyHash string, log *slog.Logger) *Server {
	return &Server{
		identityService: identityService,
		roomService:     roomService,
		chatService:     chatService,
		tokens:          tokens,
		syncKeyHash:     syncKeyHash,
		validate:        validator.New(),
		log:             log,
	}
}

// Routes registers every REST endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{roomId}", s.handleGetRoom)
	mux.HandleFunc("PUT /api/rooms/{roomId}", s.handleUpdateGroup)
	mux.HandleFunc("DELETE /api/rooms/{roomId}", s.handleDeleteGroup)
	mux.HandleFunc("PUT /api/rooms/{roomId}/read", s.handleMarkRoomRead)
	mux.HandleFunc("PUT /api/rooms/{roomId}/archive", s.handleArchiveRoom)
	mux.HandleFunc("PUT /api/rooms/{roomId}/add-member", s.handleAddMember)
	mux.HandleFunc("PUT /api/rooms/{roomId}/remove-member", s.handleRemoveMember)
	mux.HandleFunc("GET /api/rooms/{roomId}/messages", s.handleRoomMessages)

	mux.HandleFunc("POST /api/messages", s.handleSendMessage)
	mux.HandleFunc("PUT /api/messages/{messageId}/read", s.handleMarkMessageRead)
	mux.HandleFunc("DELETE /api/messages/{messageId}", s.handleDeleteMessage)
	mux.HandleFunc("GET /api/messages/search", s.handleSearch)

	mux.HandleFunc("POST /api/users/sync", s.requireAPIKey(s.handleSyncUser))
	mux.HandleFunc("POST /api/users/token", s.handleRegisterToken)
	mux.HandleFunc("GET /api/users/online/list", s.handleOnlineUsers)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)

	return mux
}

// subjectID extracts the caller identifier: a bearer token when
// present, otherwise the X-User-Id header or identifier query
// parameter. The services resolve aliases, so any of the person's
// identifiers works here.
func (s *Server) subjectID(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		if claims, err := s.tokens.Validate(token); err == nil {
			return claims.EmployeeID
		}
	}
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("identifier")
}

// requireAPIKey guards the HR integration endpoints with the shared
// key. Only its Argon2id hash lives in configuration.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Api-Key")
		if key == "" {
			s.writeError(w, wcerrors.ErrInvalidAPIKey)
			return
		}
		match, err := auth.CompareAPIKey(key, s.syncKeyHash)
		if err != nil || !match {
			s.writeError(w, wcerrors.ErrInvalidAPIKey)
			return
		}
		next(w, r)
	}
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return wcerrors.ErrInvalidPayload
	}
	if err := s.validate.Struct(dst); err != nil {
		return wcerrors.ErrInvalidPayload
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := wcerrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
		// Internals stay internal.
		s.writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
