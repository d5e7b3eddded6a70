// Package realtime is the websocket surface. One connection is one
// session; a session binds to an identity with the first user-online
// frame and from then on receives every event addressed to it.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"workchat/contract"
	"workchat/domain"
	"workchat/dto"
	"workchat/services"
)

type Handler struct {
	chatService     services.IChatService
	roomService     services.IRoomService
	presenceService services.IPresenceService
	registry        contract.IRegistry
	upgrader        websocket.Upgrader
	bufferSize      int
	log             *slog.Logger
}

func NewHandler(chatService services.IChatService, roomService services.IRoomService,
	presenceService services.IPresenceService, registry contract.IRegistry,
	bufferSize int, log *slog.Logger) *Handler {
	return &Handler{
		chatService:     chatService,
		roomService:     roomService,
		presenceService: presenceService,
		registry:        registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxFrameSize,
			WriteBufferSize: maxFrameSize,
			// The app is served to internal clients only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bufferSize: bufferSize,
		log:        log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade rejected", "error", err)
		return
	}

	sessionID := uuid.NewString()
	client := newClient(sessionID, conn, h.bufferSize, h.log)
	go client.writeLoop()

	// The user query parameter allows binding at upgrade time; clients
	// may also bind later with a user-online frame.
	if userID := r.URL.Query().Get("user"); userID != "" {
		h.bind(r.Context(), client, userID)
	}

	h.readLoop(r.Context(), client)

	h.presenceService.Disconnect(context.WithoutCancel(r.Context()), sessionID)
	client.shutdown()
}

func (h *Handler) bind(ctx context.Context, client *Client, userID string) {
	identity, err := h.presenceService.Connect(ctx, userID, client.sessionID, client)
	if err != nil {
		h.log.Warn("session bind failed", "user", userID, "error", err)
		client.sendError("bind-failed", "could not resolve identity")
		return
	}
	client.employeeID = identity.EmployeeID
}

func (h *Handler) readLoop(ctx context.Context, client *Client) {
	defer client.conn.Close()
	client.conn.SetReadLimit(maxFrameSize)
	for {
		var frame Frame
		if err := client.conn.ReadJSON(&frame); err != nil {
			return
		}
		h.dispatch(ctx, client, frame)
	}
}

// dispatch routes one inbound frame. A malformed or failing frame
// produces an error frame for this session; the connection stays up.
func (h *Handler) dispatch(ctx context.Context, client *Client, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic handling frame", "event", frame.Event, "panic", r)
			client.sendError(frame.Event, "internal error")
		}
	}()

	if frame.Event == "user-online" {
		h.handleUserOnline(ctx, client, frame.Data)
		return
	}
	if client.employeeID == "" {
		client.sendError(frame.Event, "session not bound, send user-online first")
		return
	}

	var err error
	switch frame.Event {
	case "join-room":
		err = h.handleJoinRoom(ctx, client, frame.Data)
	case "leave-room":
		err = h.handleLeaveRoom(client, frame.Data)
	case "send-message":
		err = h.handleSendMessage(ctx, client, frame.Data)
	case "typing-start":
		err = h.handleTyping(ctx, client, frame.Data, true)
	case "typing-stop":
		err = h.handleTyping(ctx, client, frame.Data, false)
	case "mark-read":
		err = h.handleMarkRead(ctx, client, frame.Data)
	default:
		client.sendError(frame.Event, "unknown event")
		return
	}
	if err != nil {
		h.log.Debug("frame rejected", "event", frame.Event,
			"session", client.sessionID, "error", err)
		client.sendError(frame.Event, err.Error())
	}
}

func (h *Handler) handleUserOnline(ctx context.Context, client *Client, data json.RawMessage) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" {
		client.sendError("user-online", "userId is required")
		return
	}
	h.bind(ctx, client, payload.UserID)
}

// handleJoinRoom subscribes the session and performs the catch-up:
// everything unread in the room is marked read in one sweep.
func (h *Handler) handleJoinRoom(ctx context.Context, client *Client, data json.RawMessage) error {
	roomID, err := roomIDOf(data)
	if err != nil {
		return err
	}
	if _, err = h.roomService.GetRoom(client.employeeID, roomID); err != nil {
		return err
	}
	h.registry.Subscribe(client.sessionID, roomID)
	_, err = h.roomService.MarkRoomRead(ctx, client.employeeID, roomID)
	return err
}

func (h *Handler) handleLeaveRoom(client *Client, data json.RawMessage) error {
	roomID, err := roomIDOf(data)
	if err != nil {
		return err
	}
	h.registry.Unsubscribe(client.sessionID, roomID)
	return nil
}

func (h *Handler) handleSendMessage(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload struct {
		RoomID     string          `json:"roomId"`
		Text       string          `json:"text"`
		Kind       string          `json:"type"`
		Attachment *dto.Attachment `json:"attachment"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	roomID, err := uuid.Parse(payload.RoomID)
	if err != nil {
		return err
	}

	req := services.SendRequest{
		SenderID: client.employeeID,
		RoomID:   roomID,
		Text:     payload.Text,
		Kind:     domain.MessageKind(payload.Kind),
	}
	if payload.Attachment != nil {
		req.Attachment = &domain.Attachment{
			URL:  payload.Attachment.URL,
			Name: payload.Attachment.Name,
			Size: payload.Attachment.Size,
			Mime: payload.Attachment.Mime,
		}
	}
	_, err = h.chatService.SendMessage(ctx, req)
	return err
}

func (h *Handler) handleTyping(ctx context.Context, client *Client, data json.RawMessage, isTyping bool) error {
	roomID, err := roomIDOf(data)
	if err != nil {
		return err
	}
	return h.chatService.Typing(ctx, client.employeeID, client.sessionID, roomID, isTyping)
}

// handleMarkRead marks one message when a messageId is given, or the
// whole room in one sweep when the frame carries only a roomId.
func (h *Handler) handleMarkRead(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload struct {
		RoomID    string `json:"roomId"`
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if payload.MessageID != "" {
		messageID, err := uuid.Parse(payload.MessageID)
		if err != nil {
			return err
		}
		_, err = h.chatService.MarkMessageRead(ctx, client.employeeID, messageID)
		return err
	}
	roomID, err := uuid.Parse(payload.RoomID)
	if err != nil {
		return err
	}
	_, err = h.roomService.MarkRoomRead(ctx, client.employeeID, roomID)
	return err
}

func roomIDOf(data json.RawMessage) (uuid.UUID, error) {
	var payload struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(payload.RoomID)
}
