// Package models holds the persistence-facing data structures shared by the
// server repositories and services.
package models

import "time"

// TokenState is the lifecycle state of a refresh token, computed at read time
// from (RevokedAt, ExpiresAt, now). It is never stored.
type TokenState int

const (
	StateActive TokenState = iota
	StateExpired
	StateRevoked
)

func (s TokenState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// RefreshToken is one issued long-lived credential bound to a user and a
// device. Token, UserID, ExpiresAt and the device metadata are immutable once
// created; the only permitted mutation is setting RevokedAt exactly once.
type RefreshToken struct {
	ID        int64
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time

	// Session-identifying metadata captured at issuance.
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

// IsRevoked reports whether RevokedAt has been set.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether the token is past its expiry at the given time.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsActive reports whether the token is usable: not revoked and not expired.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// State classifies the token. Expiry takes precedence over revocation: a
// token that is both past its expiry and revoked is reported as expired, so
// presenting it does not look like fresh reuse of a rotated token.
func (t *RefreshToken) State(now time.Time) TokenState {
	switch {
	case t.IsExpired(now):
		return StateExpired
	case t.IsRevoked():
		return StateRevoked
	default:
		return StateActive
	}
}

// Clone returns a deep copy of the token. Repositories hand out clones so
// callers cannot mutate stored state in place.
func (t *RefreshToken) Clone() *RefreshToken {
	c := *t
	if t.RevokedAt != nil {
		revoked := *t.RevokedAt
		c.RevokedAt = &revoked
	}
	return &c
}
