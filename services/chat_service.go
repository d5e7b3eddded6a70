package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"workchat/contract"
	"workchat/domain"
	"workchat/domain/event"
	wcerrors "workchat/errors"
	"workchat/moderation"
	"workchat/notifications"
	"workchat/repositories"
	"workchat/search"
)

// SendRequest is one inbound message before it enters the pipeline.
type SendRequest struct {
	SenderID   string
	RoomID     uuid.UUID
	Text       string
	Kind       domain.MessageKind
	Attachment *domain.Attachment
}

type IChatService interface {
	SendMessage(ctx context.Context, req SendRequest) (domain.Message, error)
	MarkMessageRead(ctx context.Context, subjectID string, messageID uuid.UUID) (domain.Message, error)
	Typing(ctx context.Context, subjectID, sessionID string, roomID uuid.UUID, isTyping bool) error
	History(subjectID string, roomID uuid.UUID, page, limit int) ([]domain.Message, int, error)
	SearchMessages(ctx context.Context, subjectID string, roomID uuid.UUID, terms string, limit int) ([]search.Hit, error)
	DeleteMessage(ctx context.Context, subjectID string, messageID uuid.UUID) error
}

// ChatService runs each message through a fixed pipeline:
// authorize, sanitize, persist, account, distribute. Persistence is the
// durability boundary; everything after it is best effort and can never
// fail the send.
type ChatService struct {
	identityService IIdentityService
	presenceService IPresenceService
	rooms           repositories.IRoomRepository
	messages        repositories.IMessageRepository
	moderator       moderation.Moderator
	index           *search.Index
	registry        contract.IRegistry
	pushJobs        chan<- notifications.Job
	log             *slog.Logger
}

func NewChatService(identityService IIdentityService, presenceService IPresenceService,
	rooms repositories.IRoomRepository, messages repositories.IMessageRepository,
	moderator moderation.Moderator, index *search.Index,
	registry contract.IRegistry, pushJobs chan<- notifications.Job,
	log *slog.Logger) *ChatService {
	return &ChatService{
		identityService: identityService,
		presenceService: presenceService,
		rooms:           rooms,
		messages:        messages,
		moderator:       moderator,
		index:           index,
		registry:        registry,
		pushJobs:        pushJobs,
		log:             log,
	}
}

func (s *ChatService) SendMessage(ctx context.Context, req SendRequest) (domain.Message, error) {
	// 1. Resolve the sender and check room membership on canonical ids.
	sender, err := s.identityService.Resolve(req.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	room, err := s.rooms.Get(req.RoomID)
	if err != nil {
		return domain.Message{}, err
	}
	if !room.IsParticipant(sender.EmployeeID) {
		s.log.Warn("access denied",
			"supplied", req.SenderID, "resolved", sender.EmployeeID, "room", room.ID)
		return domain.Message{}, wcerrors.ErrAccessDenied
	}

	// 2. Validate and sanitize the content.
	message, err := s.buildMessage(sender, room, req)
	if err != nil {
		return domain.Message{}, err
	}

	// 3. Persist. From here on the message exists; no later step may
	// undo or fail the send.
	if err = s.messages.Store(message); err != nil {
		return domain.Message{}, err
	}

	if err = s.index.IndexMessage(message); err != nil {
		s.log.Warn("message indexing failed", "message", message.ID, "error", err)
	}

	// 4. Account: last-message summary plus one unread increment per
	// recipient, in a single transaction.
	updatedRoom, err := s.rooms.Update(room.ID, func(r *domain.Room) error {
		r.UpdateLastMessage(message)
		for _, participant := range r.Participants {
			if participant != sender.EmployeeID {
				r.IncrementUnread(participant)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("room accounting failed after persist",
			"room", room.ID, "message", message.ID, "error", err)
		updatedRoom = room
	}

	// The sender's own device has the message by definition.
	if err = s.messages.MarkDelivered(message.ID, sender.EmployeeID); err != nil {
		s.log.Warn("self delivery ack failed", "message", message.ID, "error", err)
	}

	// 5. Distribute to live sessions and queue the pushes.
	s.distribute(ctx, message, updatedRoom, sender.EmployeeID)
	return message, nil
}

func (s *ChatService) buildMessage(sender domain.Identity, room domain.Room, req SendRequest) (domain.Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Attachment == nil {
		return domain.Message{}, wcerrors.ErrEmptyBody
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.MessageText
	}
	if err := validateAttachment(kind, req.Attachment); err != nil {
		return domain.Message{}, err
	}

	censored, foundWords := s.moderator.Censor(text)
	if len(foundWords) > 0 {
		s.log.Info("message censored", "room", room.ID,
			"sender", sender.EmployeeID, "words", len(foundWords))
	}

	var lang string
	if censored != "" {
		info := whatlanggo.Detect(censored)
		lang = info.Lang.Iso6391()
	}

	return domain.Message{
		ID:         uuid.New(),
		RoomID:     room.ID,
		SenderID:   sender.EmployeeID,
		SenderName: sender.Name,
		SenderRole: sender.Role,
		Text:       censored,
		Kind:       kind,
		Lang:       lang,
		Attachment: req.Attachment,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// validateAttachment requires a URL and a known MIME type, and keeps
// the declared type consistent with the message kind.
func validateAttachment(kind domain.MessageKind, attachment *domain.Attachment) error {
	if attachment == nil {
		if kind == domain.MessageImage || kind == domain.MessageFile {
			return wcerrors.ErrBadAttachment
		}
		return nil
	}
	if attachment.URL == "" {
		return wcerrors.ErrBadAttachment
	}
	if mimetype.Lookup(attachment.Mime) == nil {
		return wcerrors.ErrBadAttachment
	}
	if kind == domain.MessageImage && !strings.HasPrefix(attachment.Mime, "image/") {
		return wcerrors.ErrBadAttachment
	}
	return nil
}

// distribute pushes the new message to subscribed sessions, refreshes
// each member's room summary and queues a push notification per
// recipient. Pushes go to every recipient regardless of their online
// state; providers collapse them on active devices.
func (s *ChatService) distribute(ctx context.Context, message domain.Message, room domain.Room, senderID string) {
	broadcast(ctx, s.log, s.registry.SinksForRoom(room.ID), event.NewMessage{Message: message})

	for _, participant := range room.Participants {
		view := s.viewFor(participant, room)
		broadcast(ctx, s.log, s.registry.SinksForIdentity(participant), event.RoomUpdated{
			Room:      view.Room,
			OtherUser: view.OtherUser,
			Presence:  view.Presence,
			Unread:    view.Unread,
		})

		if participant == senderID {
			continue
		}
		job := notifications.Job{
			RecipientID: participant,
			Payload:     notifications.BuildMessagePayload(message, room, room.UnreadFor(participant)),
		}
		select {
		case s.pushJobs <- job:
		default:
			s.log.Warn("push queue full, notification dropped",
				"recipient", participant, "message", message.ID)
		}
	}
}

func (s *ChatService) viewFor(viewerID string, room domain.Room) RoomView {
	view := RoomView{Room: room, Unread: room.UnreadFor(viewerID)}
	switch room.Kind {
	case domain.RoomDirect:
		otherID, err := room.OtherParticipant(viewerID)
		if err == nil {
			if other, err := s.identityService.Resolve(otherID); err == nil {
				view.OtherUser = &other
			}
		}
	case domain.RoomGroup:
		if presence, err := s.presenceService.RoomPresence(viewerID, room); err == nil {
			view.Presence = &presence
		}
	}
	return view
}

// MarkMessageRead appends the subject's receipt and notifies the room.
// Re-reading is a no-op without a second event.
func (s *ChatService) MarkMessageRead(ctx context.Context, subjectID string, messageID uuid.UUID) (domain.Message, error) {
	subject, err := s.identityService.Resolve(subjectID)
	if err != nil {
		return domain.Message{}, err
	}
	message, err := s.messages.Get(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	room, err := s.rooms.Get(message.RoomID)
	if err != nil {
		return domain.Message{}, err
	}
	if !room.IsParticipant(subject.EmployeeID) {
		s.log.Warn("access denied",
			"supplied", subjectID, "resolved", subject.EmployeeID, "room", room.ID)
		return domain.Message{}, wcerrors.ErrAccessDenied
	}

	updated, added, err := s.messages.MarkRead(messageID, subject.EmployeeID, time.Now().UTC())
	if err != nil {
		return domain.Message{}, err
	}
	if added {
		broadcast(ctx, s.log, s.registry.SinksForRoom(room.ID), event.MessageRead{
			RoomID:     room.ID,
			MessageID:  messageID,
			EmployeeID: subject.EmployeeID,
		})
	}
	return updated, nil
}

// Typing relays the indicator to the other subscribed sessions of the
// room. Nothing is persisted.
func (s *ChatService) Typing(ctx context.Context, subjectID, sessionID string, roomID uuid.UUID, isTyping bool) error {
	subject, err := s.identityService.Resolve(subjectID)
	if err != nil {
		return err
	}
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if !room.IsParticipant(subject.EmployeeID) {
		s.log.Warn("access denied",
			"supplied", subjectID, "resolved", subject.EmployeeID, "room", roomID)
		return wcerrors.ErrAccessDenied
	}

	broadcast(ctx, s.log, s.registry.SinksForRoomExcept(roomID, sessionID), event.Typing{
		RoomID:     roomID,
		EmployeeID: subject.EmployeeID,
		Name:       subject.Name,
		IsTyping:   isTyping,
	})
	return nil
}

// History returns one page of the room's messages, chronological within
// the page, newest page first.
func (s *ChatService) History(subjectID string, roomID uuid.UUID, page, limit int) ([]domain.Message, int, error) {
	subject, err := s.identityService.Resolve(subjectID)
	if err != nil {
		return nil, 0, err
	}
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, 0, err
	}
	if !room.IsParticipant(subject.EmployeeID) {
		s.log.Warn("access denied",
			"supplied", subjectID, "resolved", subject.EmployeeID, "room", roomID)
		return nil, 0, wcerrors.ErrAccessDenied
	}
	return s.messages.Page(roomID, page, limit)
}

// SearchMessages queries the full-text index, scoped to a room the
// subject belongs to.
func (s *ChatService) SearchMessages(ctx context.Context, subjectID string, roomID uuid.UUID, terms string, limit int) ([]search.Hit, error) {
	subject, err := s.identityService.Resolve(subjectID)
	if err != nil {
		return nil, err
	}
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(subject.EmployeeID) {
		s.log.Warn("access denied",
			"supplied", subjectID, "resolved", subject.EmployeeID, "room", roomID)
		return nil, wcerrors.ErrAccessDenied
	}
	return s.index.Search(ctx, roomID.String(), terms, limit)
}

// DeleteMessage soft-deletes one of the subject's own messages and
// drops it from the index.
func (s *ChatService) DeleteMessage(ctx context.Context, subjectID string, messageID uuid.UUID) error {
	subject, err := s.identityService.Resolve(subjectID)
	if err != nil {
		return err
	}
	message, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if message.SenderID != subject.EmployeeID {
		s.log.Warn("access denied",
			"supplied", subjectID, "resolved", subject.EmployeeID, "message", messageID)
		return wcerrors.ErrAccessDenied
	}
	if err = s.messages.SoftDelete(messageID, time.Now().UTC()); err != nil {
		return err
	}
	if err = s.index.Delete(messageID); err != nil {
		s.log.Warn("search purge failed", "message", messageID, "error", err)
	}
	return nil
}
