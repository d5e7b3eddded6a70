package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"workchat/contract"
	"workchat/domain"
	"workchat/domain/event"
	wcerrors "workchat/errors"
	"workchat/repositories"
	"workchat/search"
)

// RoomView is a room enriched for one viewer: the counterpart profile
// for direct rooms, the presence aggregate for groups, and the viewer's
// own unread counter.
type RoomView struct {
	Room      domain.Room
	OtherUser *domain.Identity
	Presence  *domain.RoomPresence
	Unread    int
}

type IRoomService interface {
	CreateDirect(ctx context.Context, creatorID, otherID string) (domain.Room, bool, error)
	CreateGroup(ctx context.Context, creatorID, name, description string, memberIDs []string) (domain.Room, bool, error)
	AddMember(ctx context.Context, actorID string, roomID uuid.UUID, newMemberID string) (domain.Room, error)
	RemoveMember(ctx context.Context, actorID string, roomID uuid.UUID, memberID string) (domain.Room, error)
	UpdateGroup(ctx context.Context, actorID string, roomID uuid.UUID, name, description string) (domain.Room, error)
	DeleteGroup(ctx context.Context, actorID string, roomID uuid.UUID) error
	ListRooms(subjectID string) ([]RoomView, error)
	GetRoom(subjectID string, roomID uuid.UUID) (RoomView, error)
	MarkRoomRead(ctx context.Context, subjectID string, roomID uuid.UUID) (int, error)
	ArchiveRoom(subjectID string, roomID uuid.UUID) (domain.Room, error)
}

// RoomService is the membership registry. Every operation resolves
// inbound identifiers to canonical ids before touching the store, so a
// person referenced by alias and by employee id is always the same
// member.
type RoomService struct {
	identityService IIdentityService
	presenceService IPresenceService
	rooms           repositories.IRoomRepository
	messages        repositories.IMessageRepository
	index           *search.Index
	registry        contract.IRegistry
	log             *slog.Logger
}

func NewRoomService(identityService IIdentityService, presenceService IPresenceService,
	rooms repositories.IRoomRepository, messages repositories.IMessageRepository,
	index *search.Index, registry contract.IRegistry, log *slog.Logger) *RoomService {
	return &RoomService{
		identityService: identityService,
		presenceService: presenceService,
		rooms:           rooms,
		messages:        messages,
		index:           index,
		registry:        registry,
		log:             log,
	}
}

// CreateDirect returns the direct room between two people, creating it
// on first use. The pair is compared on canonical ids, so "employee id
// vs own alias" is rejected as a self-conversation instead of producing
// a corrupt room. The boolean reports whether a new room was created.
func (s *RoomService) CreateDirect(ctx context.Context, creatorID, otherID string) (domain.Room, bool, error) {
	creator, err := s.identityService.ResolveOrProvision(creatorID)
	if err != nil {
		return domain.Room{}, false, err
	}
	other, err := s.identityService.ResolveOrProvision(otherID)
	if err != nil {
		return domain.Room{}, false, err
	}
	if creator.EmployeeID == other.EmployeeID {
		return domain.Room{}, false, wcerrors.ErrSelfChat
	}

	existing, found, err := s.rooms.FindDirect(creator.EmployeeID, other.EmployeeID)
	if err != nil {
		return domain.Room{}, false, err
	}
	if found {
		return existing, false, nil
	}

	now := time.Now().UTC()
	room := domain.Room{
		ID:           uuid.New(),
		Kind:         domain.RoomDirect,
		Participants: []string{creator.EmployeeID, other.EmployeeID},
		CreatedBy:    creator.EmployeeID,
		UnreadCount: map[string]int{
			creator.EmployeeID: 0,
			other.EmployeeID:   0,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.rooms.Create(room); err != nil {
		return domain.Room{}, false, err
	}
	s.log.Info("direct room created", "room", room.ID,
		"creator", creator.EmployeeID, "other", other.EmployeeID)
	s.announceCreated(ctx, room)
	return room, true, nil
}

// CreateGroup creates a named group, or returns the existing one when a
// group with the same name and the exact same member set already
// exists. The creator is always part of the member set.
func (s *RoomService) CreateGroup(ctx context.Context, creatorID, name, description string, memberIDs []string) (domain.Room, bool, error) {
	if name == "" {
		return domain.Room{}, false, wcerrors.ErrNameRequired
	}
	creator, err := s.identityService.ResolveOrProvision(creatorID)
	if err != nil {
		return domain.Room{}, false, err
	}

	participants := []string{creator.EmployeeID}
	for _, id := range memberIDs {
		member, err := s.identityService.ResolveOrProvision(id)
		if err != nil {
			return domain.Room{}, false, err
		}
		participants = append(participants, member.EmployeeID)
	}
	participants = lo.Uniq(participants)
	sort.Strings(participants)
	if len(participants) < 2 {
		return domain.Room{}, false, wcerrors.ErrGroupTooSmall
	}

	existing, found, err := s.rooms.FindGroup(name, participants)
	if err != nil {
		return domain.Room{}, false, err
	}
	if found {
		return existing, false, nil
	}

	now := time.Now().UTC()
	counters := make(map[string]int, len(participants))
	for _, p := range participants {
		counters[p] = 0
	}
	room := domain.Room{
		ID:           uuid.New(),
		Kind:         domain.RoomGroup,
		Name:         name,
		Description:  description,
		Participants: participants,
		CreatedBy:    creator.EmployeeID,
		UnreadCount:  counters,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = s.rooms.Create(room); err != nil {
		return domain.Room{}, false, err
	}
	s.log.Info("group created", "room", room.ID, "name", name,
		"members", len(participants))
	s.announceCreated(ctx, room)
	return room, true, nil
}

func (s *RoomService) AddMember(ctx context.Context, actorID string, roomID uuid.UUID, newMemberID string) (domain.Room, error) {
	actor, err := s.identityService.Resolve(actorID)
	if err != nil {
		return domain.Room{}, err
	}
	member, err := s.identityService.ResolveOrProvision(newMemberID)
	if err != nil {
		return domain.Room{}, err
	}

	updated, err := s.rooms.Update(roomID, func(room *domain.Room) error {
		if room.Kind != domain.RoomGroup {
			return wcerrors.ErrNotGroup
		}
		if !room.IsParticipant(actor.EmployeeID) {
			s.log.Warn("access denied",
				"supplied", actorID, "resolved", actor.EmployeeID, "room", room.ID)
			return wcerrors.ErrAccessDenied
		}
		if room.IsParticipant(member.EmployeeID) {
			return wcerrors.ErrAlreadyMember
		}
		room.AddParticipant(member.EmployeeID)
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.announceMembershipChange(ctx, updated)
	return updated, nil
}

// RemoveMember drops a member from a group. A removal that would leave
// fewer than two members is rejected; the group must be deleted
// instead.
func (s *RoomService) RemoveMember(ctx context.Context, actorID string, roomID uuid.UUID, memberID string) (domain.Room, error) {
	actor, err := s.identityService.Resolve(actorID)
	if err != nil {
		return domain.Room{}, err
	}
	member, err := s.identityService.Resolve(memberID)
	if err != nil {
		return domain.Room{}, err
	}

	updated, err := s.rooms.Update(roomID, func(room *domain.Room) error {
		if room.Kind != domain.RoomGroup {
			return wcerrors.ErrNotGroup
		}
		if !room.IsParticipant(actor.EmployeeID) {
			s.log.Warn("access denied",
				"supplied", actorID, "resolved", actor.EmployeeID, "room", room.ID)
			return wcerrors.ErrAccessDenied
		}
		if !room.IsParticipant(member.EmployeeID) {
			return wcerrors.ErrNotMember
		}
		if len(room.Participants) <= 2 {
			return wcerrors.ErrLastMembers
		}
		room.RemoveParticipant(member.EmployeeID)
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	// The removed member learns about it too, before their sinks drop
	// out of the room's sets.
	broadcast(ctx, s.log, s.registry.SinksForIdentity(member.EmployeeID), event.RoomUpdated{Room: updated})
	s.announceMembershipChange(ctx, updated)
	return updated, nil
}

func (s *RoomService) UpdateGroup(ctx context.Context, actorID string, roomID uuid.UUID, name, description string) (domain.Room, error) {
	actor, err := s.identityService.Resolve(actorID)
	if err != nil {
		return domain.Room{}, err
	}
	updated, err := s.rooms.Update(roomID, func(room *domain.Room) error {
		if room.Kind != domain.RoomGroup {
			return wcerrors.ErrNotGroup
		}
		if !room.IsParticipant(actor.EmployeeID) {
			s.log.Warn("access denied",
				"supplied", actorID, "resolved", actor.EmployeeID, "room", room.ID)
			return wcerrors.ErrAccessDenied
		}
		if name != "" {
			room.Name = name
		}
		room.Description = description
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.announceMembershipChange(ctx, updated)
	return updated, nil
}

// DeleteGroup removes a group with its full message history. Only the
// creator may delete. The search index is purged best effort after the
// store is clean.
func (s *RoomService) DeleteGroup(ctx context.Context, actorID string, roomID uuid.UUID) error {
	actor, err := s.identityService.Resolve(actorID)
	if err != nil {
		return err
	}
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if room.Kind != domain.RoomGroup {
		return wcerrors.ErrNotGroup
	}
	if room.CreatedBy != actor.EmployeeID {
		s.log.Warn("access denied",
			"supplied", actorID, "resolved", actor.EmployeeID, "room", room.ID)
		return wcerrors.ErrAccessDenied
	}

	removed, err := s.messages.DeleteRoom(roomID)
	if err != nil {
		return err
	}
	if err = s.rooms.Delete(roomID); err != nil {
		return err
	}
	for _, id := range removed {
		if err = s.index.Delete(id); err != nil {
			s.log.Warn("search purge failed", "message", id, "error", err)
		}
	}
	s.log.Info("group deleted", "room", roomID, "messages", len(removed))

	for _, participant := range room.Participants {
		broadcast(ctx, s.log, s.registry.SinksForIdentity(participant), event.RoomUpdated{Room: room})
	}
	return nil
}

// ListRooms returns the subject's conversations, most recently active
// first, each enriched for that viewer.
func (s *RoomService) ListRooms(subjectID string) ([]RoomView, error) {
	subject, err := s.identityService.Resolve(subjectID)
	if err != nil {
		return nil, err
	}
	rooms, err := s.rooms.ListForMember(subject.EmployeeID)
	if err != nil {
		return nil, err
	}

	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		view, err := s.enrich(subject.EmployeeID, room)
		if err != nil {
			s.log.Warn("room enrichment failed", "room", room.ID, "error", err)
			view = RoomView{Room: room, Unread: room.UnreadFor(subject.EmployeeID)}
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *RoomService) GetRoom(subjectID string, roomID uuid.UUID) (RoomView, error) {
	subject, room, err := s.authorize(subjectID, roomID)
	if err != nil {
		return RoomView{}, err
	}
	return s.enrich(subject.EmployeeID, room)
}

// MarkRoomRead is the catch-up operation: every unread message from
// other members gets a receipt, the subject's counter drops to zero and
// other members are told in one bulk event. Returns how many messages
// were marked.
func (s *RoomService) MarkRoomRead(ctx context.Context, subjectID string, roomID uuid.UUID) (int, error) {
	subject, _, err := s.authorize(subjectID, roomID)
	if err != nil {
		return 0, err
	}

	readAt := time.Now().UTC()
	marked, err := s.messages.MarkAllRead(roomID, subject.EmployeeID, readAt)
	if err != nil {
		return 0, err
	}
	if _, err = s.rooms.Update(roomID, func(room *domain.Room) error {
		room.ResetUnread(subject.EmployeeID)
		return nil
	}); err != nil {
		return 0, err
	}

	if marked > 0 {
		broadcast(ctx, s.log, s.registry.SinksForRoom(roomID), event.MessagesRead{
			RoomID:     roomID,
			EmployeeID: subject.EmployeeID,
			ReadAt:     readAt,
			Count:      marked,
		})
	}
	return marked, nil
}

// ArchiveRoom toggles the room in and out of the subject's archive.
func (s *RoomService) ArchiveRoom(subjectID string, roomID uuid.UUID) (domain.Room, error) {
	subject, _, err := s.authorize(subjectID, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	return s.rooms.Update(roomID, func(room *domain.Room) error {
		room.ToggleArchived(subject.EmployeeID)
		return nil
	})
}

// authorize resolves the subject and checks room membership.
func (s *RoomService) authorize(subjectID string, roomID uuid.UUID) (domain.Identity, domain.Room, error) {
	subject, err := s.identityService.Resolve(subjectID)
	if err != nil {
		return domain.Identity{}, domain.Room{}, err
	}
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return domain.Identity{}, domain.Room{}, err
	}
	if !room.IsParticipant(subject.EmployeeID) {
		s.log.Warn("access denied",
			"supplied", subjectID, "resolved", subject.EmployeeID, "room", roomID)
		return domain.Identity{}, domain.Room{}, wcerrors.ErrAccessDenied
	}
	return subject, room, nil
}

func (s *RoomService) enrich(viewerID string, room domain.Room) (RoomView, error) {
	view := RoomView{Room: room, Unread: room.UnreadFor(viewerID)}
	switch room.Kind {
	case domain.RoomDirect:
		otherID, err := room.OtherParticipant(viewerID)
		if err != nil {
			return RoomView{}, err
		}
		other, err := s.identityService.Resolve(otherID)
		if err != nil {
			return RoomView{}, err
		}
		view.OtherUser = &other
	case domain.RoomGroup:
		presence, err := s.presenceService.RoomPresence(viewerID, room)
		if err != nil {
			return RoomView{}, err
		}
		view.Presence = &presence
	}
	return view, nil
}

func (s *RoomService) announceCreated(ctx context.Context, room domain.Room) {
	for _, participant := range room.Participants {
		broadcast(ctx, s.log, s.registry.SinksForIdentity(participant), event.RoomCreated{Room: room})
	}
}

// announceMembershipChange sends every current member their own view of
// the refreshed room.
func (s *RoomService) announceMembershipChange(ctx context.Context, room domain.Room) {
	for _, participant := range room.Participants {
		view, err := s.enrich(participant, room)
		if err != nil {
			s.log.Warn("room enrichment failed", "room", room.ID, "error", err)
			view = RoomView{Room: room}
		}
		broadcast(ctx, s.log, s.registry.SinksForIdentity(participant), event.RoomUpdated{
			Room:      view.Room,
			OtherUser: view.OtherUser,
			Presence:  view.Presence,
			Unread:    view.Unread,
		})
	}
}
