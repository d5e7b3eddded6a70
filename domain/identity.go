// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/samber/lo"
)

// Identity is the canonical record for one person. EmployeeID is the
// single authoritative identifier; LoginID is an optional secondary
// handle that may be used interchangeably at the boundary.
type Identity struct {
	EmployeeID string
	LoginID    string
	Name       string
	Role       string
	Department string
	Position   string

	Online    bool
	LastSeen  time.Time
	SessionID string

	// PushTokens holds one token per registered device.
	PushTokens []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddPushToken registers a device token, ignoring duplicates.
func (i *Identity) AddPushToken(token string) {
	if !lo.Contains(i.PushTokens, token) {
		i.PushTokens = append(i.PushTokens, token)
	}
}

// RemovePushToken drops a token reported as permanently invalid.
func (i *Identity) RemovePushToken(token string) {
	i.PushTokens = lo.Filter(i.PushTokens, func(t string, _ int) bool {
		return t != token
	})
}

// SetOnline records a live connection. The session id always tracks the
// most recent connection so stale disconnects can be detected.
func (i *Identity) SetOnline(sessionID string) {
	i.Online = true
	i.SessionID = sessionID
	i.LastSeen = time.Now().UTC()
}

func (i *Identity) SetOffline() {
	i.Online = false
	i.SessionID = ""
	i.LastSeen = time.Now().UTC()
}
