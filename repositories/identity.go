package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"workchat/domain"
	wcerrors "workchat/errors"
)

type IIdentityRepository interface {
	Get(employeeID string) (domain.Identity, error)
	FindByAlias(loginID string) (domain.Identity, error)
	Put(identity domain.Identity) error
	Update(employeeID string, fn func(*domain.Identity) error) (domain.Identity, error)
	Delete(employeeID string) error
	ListOnline() ([]domain.Identity, error)
}

type IdentityRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewIdentityRepository(db *badger.DB, log *slog.Logger) IdentityRepository {
	return IdentityRepository{db: db, log: log}
}

// DiskIdentity is the stored shape of an identity record.
type DiskIdentity struct {
	EmployeeID string    `json:"employee_id"`
	LoginID    string    `json:"login_id,omitempty"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Department string    `json:"department,omitempty"`
	Position   string    `json:"position,omitempty"`
	Online     bool      `json:"online"`
	LastSeen   time.Time `json:"last_seen"`
	SessionID  string    `json:"session_id,omitempty"`
	PushTokens []string  `json:"push_tokens,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func identityKey(employeeID string) []byte {
	return []byte("identity:" + employeeID)
}

// aliasKey maps a secondary login id onto its canonical employee id.
func aliasKey(loginID string) []byte {
	return []byte("alias:" + loginID)
}

func (r IdentityRepository) Get(employeeID string) (domain.Identity, error) {
	var disk DiskIdentity
	err := r.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, identityKey(employeeID), &disk)
	})
	if err != nil {
		return domain.Identity{}, mapNotFound(err, wcerrors.ErrIdentityNotFound)
	}
	return toIdentity(disk), nil
}

func (r IdentityRepository) FindByAlias(loginID string) (domain.Identity, error) {
	var disk DiskIdentity
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(aliasKey(loginID))
		if err != nil {
			return err
		}
		var employeeID string
		if err = item.Value(func(val []byte) error {
			employeeID = string(val)
			return nil
		}); err != nil {
			return err
		}
		return readJSON(txn, identityKey(employeeID), &disk)
	})
	if err != nil {
		return domain.Identity{}, mapNotFound(err, wcerrors.ErrIdentityNotFound)
	}
	return toIdentity(disk), nil
}

// Put writes the record and keeps the alias index in step. An alias is
// only indexed when present; a removed alias entry is cleaned up lazily
// by the next Put carrying the new mapping.
func (r IdentityRepository) Put(identity domain.Identity) error {
	return runUpdate(r.db, func(txn *badger.Txn) error {
		if err := writeJSON(txn, identityKey(identity.EmployeeID), fromIdentity(identity)); err != nil {
			return err
		}
		if identity.LoginID != "" {
			return txn.Set(aliasKey(identity.LoginID), []byte(identity.EmployeeID))
		}
		return nil
	})
}

// Update applies fn inside one transaction so concurrent mutations of
// presence flags and token sets are never lost.
func (r IdentityRepository) Update(employeeID string, fn func(*domain.Identity) error) (domain.Identity, error) {
	var updated domain.Identity
	err := runUpdate(r.db, func(txn *badger.Txn) error {
		var disk DiskIdentity
		if err := readJSON(txn, identityKey(employeeID), &disk); err != nil {
			return err
		}
		identity := toIdentity(disk)
		if err := fn(&identity); err != nil {
			return err
		}
		identity.UpdatedAt = time.Now().UTC()
		updated = identity
		if err := writeJSON(txn, identityKey(employeeID), fromIdentity(identity)); err != nil {
			return err
		}
		if identity.LoginID != "" {
			return txn.Set(aliasKey(identity.LoginID), []byte(identity.EmployeeID))
		}
		return nil
	})
	if err != nil {
		return domain.Identity{}, mapNotFound(err, wcerrors.ErrIdentityNotFound)
	}
	return updated, nil
}

// Delete removes a record together with its alias entry. Used when a
// provisional record is folded into the canonical one during a sync.
func (r IdentityRepository) Delete(employeeID string) error {
	return runUpdate(r.db, func(txn *badger.Txn) error {
		var disk DiskIdentity
		if err := readJSON(txn, identityKey(employeeID), &disk); err != nil {
			return err
		}
		if disk.LoginID != "" {
			if err := txn.Delete(aliasKey(disk.LoginID)); err != nil {
				return err
			}
		}
		return txn.Delete(identityKey(employeeID))
	})
}

func (r IdentityRepository) ListOnline() ([]domain.Identity, error) {
	var online []domain.Identity
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("identity:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk DiskIdentity
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			if disk.Online {
				online = append(online, toIdentity(disk))
			}
		}
		return nil
	})
	return online, err
}

func readJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// mapNotFound converts the storage-level miss into the domain taxonomy.
func mapNotFound(err, domainErr error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domainErr
	}
	return err
}

func writeJSON(txn *badger.Txn, key []byte, v any) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, bytes)
}

func fromIdentity(i domain.Identity) DiskIdentity {
	return DiskIdentity{
		EmployeeID: i.EmployeeID,
		LoginID:    i.LoginID,
		Name:       i.Name,
		Role:       i.Role,
		Department: i.Department,
		Position:   i.Position,
		Online:     i.Online,
		LastSeen:   i.LastSeen,
		SessionID:  i.SessionID,
		PushTokens: i.PushTokens,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

func toIdentity(d DiskIdentity) domain.Identity {
	return domain.Identity{
		EmployeeID: d.EmployeeID,
		LoginID:    d.LoginID,
		Name:       d.Name,
		Role:       d.Role,
		Department: d.Department,
		Position:   d.Position,
		Online:     d.Online,
		LastSeen:   d.LastSeen,
		SessionID:  d.SessionID,
		PushTokens: d.PushTokens,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}
