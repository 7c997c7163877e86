package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshToken_State(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	tests := []struct {
		name  string
		token RefreshToken
		want  TokenState
	}{
		{
			name:  "active",
			token: RefreshToken{ExpiresAt: now.Add(time.Hour)},
			want:  StateActive,
		},
		{
			name:  "expired",
			token: RefreshToken{ExpiresAt: now.Add(-time.Hour)},
			want:  StateExpired,
		},
		{
			name:  "revoked",
			token: RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked},
			want:  StateRevoked,
		},
		{
			name:  "expired and revoked reports expired",
			token: RefreshToken{ExpiresAt: now.Add(-time.Hour), RevokedAt: &revoked},
			want:  StateExpired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.token.State(now))
		})
	}
}

func TestRefreshToken_IsActive(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Second)

	active := RefreshToken{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, active.IsActive(now))

	expired := RefreshToken{ExpiresAt: now.Add(-time.Second)}
	assert.False(t, expired.IsActive(now))

	dead := RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}
	assert.False(t, dead.IsActive(now))
}

func TestRefreshToken_Clone_Independent(t *testing.T) {
	now := time.Now()
	orig := &RefreshToken{Token: "t", UserID: "u", ExpiresAt: now, RevokedAt: &now}

	clone := orig.Clone()
	assert.Equal(t, orig, clone)

	later := now.Add(time.Hour)
	clone.RevokedAt = &later
	assert.Equal(t, now, *orig.RevokedAt, "mutating the clone must not touch the original")
}

func TestTokenState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "expired", StateExpired.String())
	assert.Equal(t, "revoked", StateRevoked.String())
	assert.Equal(t, "unknown", TokenState(42).String())
}
