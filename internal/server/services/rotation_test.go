package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/common"
	"github.com/dmitrijs2005/tokenvault/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotate_Success(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	t1, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{DeviceName: "laptop"})
	require.NoError(t, err)
	access := s.accessTokenFor(t, "u1")

	t2, err := s.rotation.Rotate(ctx, t1.RefreshToken, access, DeviceContext{})
	require.NoError(t, err)
	assert.NotEqual(t, t1.RefreshToken, t2.RefreshToken)

	requireRevoked(t, s.findByValue(t, t1.RefreshToken))
	assert.Equal(t, 1, s.activeCount(t, "u1"), "exactly one active token after rotation")

	// the replacement keeps the device lineage of the token it replaced
	old := s.findByValue(t, t1.RefreshToken)
	replacement := s.findByValue(t, t2.RefreshToken)
	assert.Equal(t, old.DeviceID, replacement.DeviceID)
	assert.Equal(t, "laptop", replacement.DeviceName)
}

func TestRotate_UnknownTokenFails(t *testing.T) {
	s := newTestStack(t)

	_, err := s.rotation.Rotate(context.Background(), "no-such-token", s.accessTokenFor(t, "u1"), DeviceContext{})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRotate_ReplayRevokesAllSessions(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	a, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{DeviceName: "phone"})
	require.NoError(t, err)
	b, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{DeviceName: "tablet"})
	require.NoError(t, err)
	c, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{DeviceName: "desktop"})
	require.NoError(t, err)

	access := s.accessTokenFor(t, "u1")
	aPrime, err := s.rotation.Rotate(ctx, a.RefreshToken, access, DeviceContext{})
	require.NoError(t, err)

	// presenting A again is replay: the whole account gets logged out
	_, err = s.rotation.Rotate(ctx, a.RefreshToken, access, DeviceContext{})
	assert.ErrorIs(t, err, common.ErrTokenReuseDetected)

	requireRevoked(t, s.findByValue(t, aPrime.RefreshToken))
	requireRevoked(t, s.findByValue(t, b.RefreshToken))
	requireRevoked(t, s.findByValue(t, c.RefreshToken))

	sessions, err := s.sessions.ListSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRotate_ExpiredTokenFailsWithoutCascade(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.addToken(t, expiredToken("u1", "stale-token"))
	fresh, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)

	_, err = s.rotation.Rotate(ctx, "stale-token", s.accessTokenFor(t, "u1"), DeviceContext{})
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)

	assert.False(t, s.findByValue(t, fresh.RefreshToken).IsRevoked(), "expired presentation must not revoke other sessions")
	assert.Equal(t, 1, s.activeCount(t, "u1"))
}

func TestRotate_ExpiredAndRevokedReportsExpired(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	revokedAt := time.Now().Add(-2 * time.Hour)
	dead := expiredToken("u1", "dead-token")
	dead.RevokedAt = &revokedAt
	s.addToken(t, dead)

	other, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)

	_, err = s.rotation.Rotate(ctx, "dead-token", s.accessTokenFor(t, "u1"), DeviceContext{})
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired, "expiry takes precedence over replay")

	assert.False(t, s.findByValue(t, other.RefreshToken).IsRevoked(), "no cascade for an already-harmless token")
}

func TestRotate_SubjectMismatchFails(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	pair, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)

	_, err = s.rotation.Rotate(ctx, pair.RefreshToken, s.accessTokenFor(t, "someone-else"), DeviceContext{})
	assert.ErrorIs(t, err, common.ErrTokenMismatch)

	assert.False(t, s.findByValue(t, pair.RefreshToken).IsRevoked(), "mismatch must leave the presented token untouched")
}

func TestRotate_BadAccessTokenSignatureFails(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	pair, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)

	forged, err := auth.GenerateToken("u1", nil, []byte("other-key"), s.cfg.JWTIssuer, s.cfg.JWTAudience, time.Now(), time.Hour)
	require.NoError(t, err)

	_, err = s.rotation.Rotate(ctx, pair.RefreshToken, forged, DeviceContext{})
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRotate_AcceptsExpiredAccessToken(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	pair, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)

	expired, err := auth.GenerateToken("u1", nil, []byte(s.cfg.SecretKey), s.cfg.JWTIssuer, s.cfg.JWTAudience, time.Now().Add(-48*time.Hour), time.Minute)
	require.NoError(t, err)

	// refresh exists precisely to renew an expired access token
	_, err = s.rotation.Rotate(ctx, pair.RefreshToken, expired, DeviceContext{})
	assert.NoError(t, err)
}

func TestRotate_ValidateOnlyMode(t *testing.T) {
	s := newTestStack(t)
	s.rotation.rotateOnUse = false
	ctx := context.Background()

	pair, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)

	renewed, err := s.rotation.Rotate(ctx, pair.RefreshToken, s.accessTokenFor(t, "u1"), DeviceContext{})
	require.NoError(t, err)

	assert.Equal(t, pair.RefreshToken, renewed.RefreshToken, "validate-only mode keeps the refresh token")
	assert.False(t, s.findByValue(t, pair.RefreshToken).IsRevoked())
	assert.Equal(t, 1, s.activeCount(t, "u1"))

	claims, err := auth.ParseToken(renewed.AccessToken, []byte(s.cfg.SecretKey))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestRotate_ValidateOnlyModeStillDetectsReplay(t *testing.T) {
	s := newTestStack(t)
	s.rotation.rotateOnUse = false
	ctx := context.Background()

	revokedAt := time.Now().Add(-time.Minute)
	s.addToken(t, revokedToken("u1", "rotated-away", revokedAt))
	other, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)

	_, err = s.rotation.Rotate(ctx, "rotated-away", s.accessTokenFor(t, "u1"), DeviceContext{})
	assert.ErrorIs(t, err, common.ErrTokenReuseDetected)

	requireRevoked(t, s.findByValue(t, other.RefreshToken))
}

func TestRotate_ConcurrentCallsExactlyOneWinner(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	t1, err := s.issuer.IssueForLogin(ctx, "u1", nil, DeviceContext{})
	require.NoError(t, err)
	access := s.accessTokenFor(t, "u1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.rotation.Rotate(ctx, t1.RefreshToken, access, DeviceContext{})
		}(i)
	}
	wg.Wait()

	var successes, replays int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, common.ErrTokenReuseDetected):
			replays++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one rotation may win")
	assert.Equal(t, 1, replays, "the loser must land in the replay branch")

	assert.Equal(t, 0, s.activeCount(t, "u1"), "the replay cascade revokes the winner's token too")
}
