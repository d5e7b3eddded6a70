package services

import (
	"context"
	"log/slog"

	"workchat/contract"
	"workchat/domain"
	"workchat/domain/event"
	"workchat/repositories"
)

type IPresenceService interface {
	Connect(ctx context.Context, id, sessionID string, sink contract.EventSink) (domain.Identity, error)
	Disconnect(ctx context.Context, sessionID string)
	RoomPresence(viewerID string, room domain.Room) (domain.RoomPresence, error)
}

// PresenceService tracks who is connected. The persisted record keeps
// the session id of the most recent connection; a disconnect only flips
// the person offline when it carries that same session id, so a fast
// reconnect is never clobbered by the old socket closing late.
type PresenceService struct {
	identityService IIdentityService
	identities      repositories.IIdentityRepository
	rooms           repositories.IRoomRepository
	registry        contract.IRegistry
	log             *slog.Logger
}

func NewPresenceService(identityService IIdentityService,
	identities repositories.IIdentityRepository,
	rooms repositories.IRoomRepository,
	registry contract.IRegistry, log *slog.Logger) *PresenceService {
	return &PresenceService{
		identityService: identityService,
		identities:      identities,
		rooms:           rooms,
		registry:        registry,
		log:             log,
	}
}

// Connect resolves (or provisions) the identity, registers the session
// and announces the transition. The status broadcast only fires when
// the person was actually offline before.
func (s *PresenceService) Connect(ctx context.Context, id, sessionID string, sink contract.EventSink) (domain.Identity, error) {
	identity, err := s.identityService.ResolveOrProvision(id)
	if err != nil {
		return domain.Identity{}, err
	}

	// A session already bound to someone else is released first, with
	// the full offline teardown for the previous identity.
	if previousID, ok := s.registry.IdentityOf(sessionID); ok && previousID != identity.EmployeeID {
		s.Disconnect(ctx, sessionID)
	}

	wasOnline := identity.Online
	identity, err = s.identities.Update(identity.EmployeeID, func(i *domain.Identity) error {
		i.SetOnline(sessionID)
		return nil
	})
	if err != nil {
		return domain.Identity{}, err
	}

	s.registry.Register(sessionID, identity.EmployeeID, sink)
	s.log.Info("session connected",
		"employee", identity.EmployeeID, "session", sessionID)

	if !wasOnline {
		s.announceTransition(ctx, identity.EmployeeID, true)
	}
	return identity, nil
}

// Disconnect tears down one session. The offline transition is guarded
// by the stored session id: a disconnect from a superseded session only
// removes its registry entry.
func (s *PresenceService) Disconnect(ctx context.Context, sessionID string) {
	employeeID, ok := s.registry.Unregister(sessionID)
	if !ok {
		return
	}

	identity, err := s.identities.Get(employeeID)
	if err != nil {
		s.log.Warn("disconnect for unknown identity", "employee", employeeID, "error", err)
		return
	}
	if identity.SessionID != sessionID {
		s.log.Debug("stale disconnect ignored",
			"employee", employeeID, "session", sessionID)
		return
	}

	if _, err = s.identities.Update(employeeID, func(i *domain.Identity) error {
		i.SetOffline()
		return nil
	}); err != nil {
		s.log.Warn("failed to persist offline state", "employee", employeeID, "error", err)
		return
	}
	s.log.Info("session disconnected", "employee", employeeID, "session", sessionID)
	s.announceTransition(ctx, employeeID, false)
}

// announceTransition broadcasts the global status change, then refreshes
// the presence aggregate of every group room the person belongs to for
// the other members.
func (s *PresenceService) announceTransition(ctx context.Context, employeeID string, online bool) {
	broadcast(ctx, s.log, s.registry.AllSinks(), event.UserStatus{
		EmployeeID: employeeID,
		Online:     online,
	})

	rooms, err := s.rooms.ListForMember(employeeID)
	if err != nil {
		s.log.Warn("presence refresh skipped", "employee", employeeID, "error", err)
		return
	}
	for _, room := range rooms {
		if room.Kind != domain.RoomGroup {
			continue
		}
		for _, member := range room.Participants {
			if member == employeeID {
				continue
			}
			presence, err := s.RoomPresence(member, room)
			if err != nil {
				s.log.Warn("presence aggregate failed",
					"room", room.ID, "viewer", member, "error", err)
				continue
			}
			broadcast(ctx, s.log, s.registry.SinksForIdentity(member), event.RoomUpdated{
				Room:     room,
				Presence: &presence,
				Unread:   room.UnreadFor(member),
			})
		}
	}
}

// RoomPresence computes the aggregate a viewer sees for a group room:
// the other members with their online flags, plus counts that exclude
// the viewer.
func (s *PresenceService) RoomPresence(viewerID string, room domain.Room) (domain.RoomPresence, error) {
	members := make([]domain.Identity, 0, len(room.Participants))
	for _, participant := range room.Participants {
		identity, err := s.identities.Get(participant)
		if err != nil {
			return domain.RoomPresence{}, err
		}
		members = append(members, identity)
	}
	return domain.BuildRoomPresence(viewerID, members), nil
}
