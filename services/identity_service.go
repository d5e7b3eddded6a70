package services

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"workchat/auth"
	"workchat/domain"
	wcerrors "workchat/errors"
	"workchat/repositories"
)

// SyncProfile is the record pushed by the HR system for one employee.
type SyncProfile struct {
	EmployeeID string
	LoginID    string
	Name       string
	Role       string
	Department string
	Position   string
}

type IIdentityService interface {
	Resolve(id string) (domain.Identity, error)
	ResolveOrProvision(id string) (domain.Identity, error)
	Sync(profile SyncProfile) (domain.Identity, string, error)
	RegisterPushToken(id, token string) error
	Online() ([]domain.Identity, error)
}

// IdentityService owns identifier resolution: any inbound identifier,
// canonical or alias, maps to exactly one record, and a given input
// always resolves to the same record.
type IdentityService struct {
	identities repositories.IIdentityRepository
	tokens     auth.TokenService
	log        *slog.Logger
}

func NewIdentityService(identities repositories.IIdentityRepository,
	tokens auth.TokenService, log *slog.Logger) *IdentityService {
	return &IdentityService{identities: identities, tokens: tokens, log: log}
}

// Resolve maps an inbound identifier to its canonical record: primary
// lookup first, alias lookup second.
func (s *IdentityService) Resolve(id string) (domain.Identity, error) {
	identity, err := s.identities.Get(id)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, wcerrors.ErrIdentityNotFound) {
		return domain.Identity{}, err
	}
	return s.identities.FindByAlias(id)
}

// ResolveOrProvision resolves an identifier, creating a minimal
// placeholder record when nothing matches. Provisioned records use the
// unresolved identifier as their canonical id; a later directory sync
// fills in the real profile.
func (s *IdentityService) ResolveOrProvision(id string) (domain.Identity, error) {
	identity, err := s.Resolve(id)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, wcerrors.ErrIdentityNotFound) {
		return domain.Identity{}, err
	}

	now := time.Now().UTC()
	identity = domain.Identity{
		EmployeeID: id,
		Name:       "User " + id,
		Role:       "employee",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = s.identities.Put(identity); err != nil {
		return domain.Identity{}, err
	}
	s.log.Info("provisioned placeholder identity", "employee", id)
	return identity, nil
}

// Sync upserts a directory profile and returns a signed service token
// for the canonical id.
//
// When the only existing record was provisioned under the login id
// (the person connected before their first sync), that record is folded
// into the canonical one: presence and push tokens carry over, and the
// login id becomes an alias of the employee id.
func (s *IdentityService) Sync(profile SyncProfile) (domain.Identity, string, error) {
	if profile.EmployeeID == "" {
		return domain.Identity{}, "", wcerrors.ErrInvalidPayload
	}

	identity, err := s.upsert(profile)
	if err != nil {
		return domain.Identity{}, "", err
	}

	token, err := s.tokens.Generate(identity.EmployeeID, identity.Role)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("token generation failed: %w", err)
	}
	return identity, token, nil
}

func (s *IdentityService) upsert(profile SyncProfile) (domain.Identity, error) {
	updated, err := s.identities.Update(profile.EmployeeID, func(identity *domain.Identity) error {
		applyProfile(identity, profile)
		return nil
	})
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, wcerrors.ErrIdentityNotFound) {
		return domain.Identity{}, err
	}

	now := time.Now().UTC()
	identity := domain.Identity{
		EmployeeID: profile.EmployeeID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	applyProfile(&identity, profile)

	if profile.LoginID != "" {
		provisional, err := s.identities.Get(profile.LoginID)
		if err == nil {
			identity.Online = provisional.Online
			identity.LastSeen = provisional.LastSeen
			identity.SessionID = provisional.SessionID
			identity.PushTokens = provisional.PushTokens
			identity.CreatedAt = provisional.CreatedAt
			if err = s.identities.Delete(profile.LoginID); err != nil {
				return domain.Identity{}, err
			}
			s.log.Info("migrated provisional identity",
				"alias", profile.LoginID, "employee", profile.EmployeeID)
		} else if !errors.Is(err, wcerrors.ErrIdentityNotFound) {
			return domain.Identity{}, err
		}
	}

	if err := s.identities.Put(identity); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

func applyProfile(identity *domain.Identity, profile SyncProfile) {
	identity.LoginID = profile.LoginID
	identity.Name = profile.Name
	if profile.Role != "" {
		identity.Role = profile.Role
	} else if identity.Role == "" {
		identity.Role = "employee"
	}
	identity.Department = profile.Department
	identity.Position = profile.Position
}

// RegisterPushToken attaches a device token to the resolved record.
func (s *IdentityService) RegisterPushToken(id, token string) error {
	if token == "" {
		return wcerrors.ErrInvalidPayload
	}
	identity, err := s.Resolve(id)
	if err != nil {
		return err
	}
	_, err = s.identities.Update(identity.EmployeeID, func(i *domain.Identity) error {
		i.AddPushToken(token)
		return nil
	})
	return err
}

func (s *IdentityService) Online() ([]domain.Identity, error) {
	return s.identities.ListOnline()
}
