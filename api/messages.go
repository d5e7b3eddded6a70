package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"workchat/domain"
	"workchat/dto"
	wcerrors "workchat/errors"
	"workchat/services"
)

type sendMessageRequest struct {
	RoomID     string          `json:"roomId" validate:"required,uuid"`
	Text       string          `json:"text"`
	Kind       string          `json:"type"`
	Attachment *dto.Attachment `json:"attachment"`
}

func (s *Server) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	subject, roomID, ok := s.roomRequest(w, r)
	if !ok {
		return
	}
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)

	messages, total, err := s.chatService.History(subject, roomID, page, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, dto.ToMessage(m))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"messages": out,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	var req sendMessageRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}

	send := services.SendRequest{
		SenderID: subject,
		RoomID:   roomID,
		Text:     req.Text,
		Kind:     domain.MessageKind(req.Kind),
	}
	if req.Attachment != nil {
		send.Attachment = &domain.Attachment{
			URL:  req.Attachment.URL,
			Name: req.Attachment.Name,
			Size: req.Attachment.Size,
			Mime: req.Attachment.Mime,
		}
	}
	message, err := s.chatService.SendMessage(r.Context(), send)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, dto.ToMessage(message))
}

func (s *Server) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	messageID, err := uuid.Parse(r.PathValue("messageId"))
	if err != nil {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	message, err := s.chatService.MarkMessageRead(r.Context(), subject, messageID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dto.ToMessage(message))
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	messageID, err := uuid.Parse(r.PathValue("messageId"))
	if err != nil {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	if err = s.chatService.DeleteMessage(r.Context(), subject, messageID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	subject := s.subjectID(r)
	if subject == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	roomID, err := uuid.Parse(r.URL.Query().Get("roomId"))
	if err != nil {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	terms := r.URL.Query().Get("q")
	if terms == "" {
		s.writeError(w, wcerrors.ErrInvalidPayload)
		return
	}
	limit := queryInt(r, "limit", 20)

	hits, err := s.chatService.SearchMessages(r.Context(), subject, roomID, terms, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"hits": hits, "count": len(hits)})
}

func queryInt(r *http.Request, name string, fallback int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
