package api

import (
	"net/http"

	"workchat/dto"
	wcerrors "workchat/errors"
	"workchat/services"
)

type syncUserRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	LoginID    string `json:"loginId"`
	Name       string `json:"name" validate:"required"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Position   string `json:"position"`
}

// handleSyncUser upserts one directory profile. Guarded by the shared
// API key; returns the canonical record plus a service token the client
// can present on later calls.
func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	var req syncUserRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	identity, token, err := s.identityService.Sync(services.SyncProfile{
		EmployeeID: req.EmployeeID,
		LoginID:    req.LoginID,
		Name:       req.Name,
		Role:       req.Role,
		Department: req.Department,
		Position:   req.Position,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user":  dto.ToUser(identity),
		"token": token,
	})
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	var req struct {
		Token string `json:"token" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.identityService.RegisterPushToken(subject, req.Token); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	identity, err := s.identityService.Resolve(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dto.ToUser(identity))
}

func (s *Server) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	online, err := s.identityService.Online()
	if err != nil {
		s.writeError(w, err)
		return
	}
	users := make([]dto.User, 0, len(online))
	for _, identity := range online {
		users = append(users, dto.ToUser(identity))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}
