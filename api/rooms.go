package api

import (
	"net/http"

	"github.com/google/uuid"

	"workchat/dto"
	wcerrors "workchat/errors"
	"workchat/services"
)

type createRoomRequest struct {
	Kind        string   `json:"type" validate:"required,oneof=direct group"`
	Participant string   `json:"participant"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	views, err := s.roomService.ListRooms(subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rooms := make([]dto.Room, 0, len(views))
	for _, view := range views {
		rooms = append(rooms, dto.ToRoomView(view))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	var req createRoomRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var (
		room    services.RoomView
		created bool
	)
	switch req.Kind {
	case "direct":
		if req.Participant == "" {
			s.writeError(w, wcerrors.ErrInvalidPayload)
			return
		}
		raw, wasCreated, err := s.roomService.CreateDirect(r.Context(), subject, req.Participant)
		if err != nil {
			s.writeError(w, err)
			return
		}
		created = wasCreated
		room, err = s.roomService.GetRoom(subject, raw.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
	case "group":
		raw, wasCreated, err := s.roomService.CreateGroup(r.Context(), subject, req.Name, req.Description, req.Members)
		if err != nil {
			s.writeError(w, err)
			return
		}
		created = wasCreated
		room, err = s.roomService.GetRoom(subject, raw.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, dto.ToRoomView(room))
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	view, err := s.roomService.GetRoom(subject, roomID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dto.ToRoomView(view))
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	room, err := s.roomService.UpdateGroup(r.Context(), subject, roomID, req.Name, req.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dto.ToRoom(room, room.UnreadFor(subject), nil, nil))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	if err := s.roomService.DeleteGroup(r.Context(), subject, roomID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleMarkRoomRead(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	marked, err := s.roomService.MarkRoomRead(r.Context(), subject, roomID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (s *Server) handleArchiveRoom(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	room, err := s.roomService.ArchiveRoom(subject, roomID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dto.ToRoom(room, room.UnreadFor(subject), nil, nil))
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		Member string `json:"member" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	room, err := s.roomService.AddMember(r.Context(), subject, roomID, req.Member)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dto.ToRoom(room, room.UnreadFor(subject), nil, nil))
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	var req struct {
		Member string `json:"member" validate:"required"`
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	room, err := s.roomService.RemoveMember(r.Context(), subject, roomID, req.Member)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dto.ToRoom(room, room.UnreadFor(subject), nil, nil))
}

// roomRequest extracts the caller and the path room id, writing the
// error response itself when either is missing.
func (s *Server) roomRequest(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return "", uuid.Nil, false
	}
	roomID, err := uuid.Parse(r.PathValue("roomId"))
	if err != nil {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return "", uuid.Nil, false
	}
	return subject, roomID, true
}
