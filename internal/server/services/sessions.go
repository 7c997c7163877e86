package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/server/config"
	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/tokens"
)

// Session describes one active device session, sourced from an unrevoked,
// unexpired refresh token.
type Session struct {
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// SessionService lists a user's active sessions and revokes them one at a
// time or in bulk ("log out everywhere").
type SessionService struct {
	rm  repomanager.RepositoryManager
	now func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(rm repomanager.RepositoryManager, cfg *config.Config) *SessionService {
	return &SessionService{rm: rm, now: time.Now}
}

// ListSessions returns the user's active sessions, oldest first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	active, err := s.rm.Tokens().FindActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(active))
	for _, token := range active {
		sessions = append(sessions, Session{
			DeviceID:   token.DeviceID,
			DeviceName: token.DeviceName,
			IPAddress:  token.IPAddress,
			UserAgent:  token.UserAgent,
			CreatedAt:  token.CreatedAt,
			ExpiresAt:  token.ExpiresAt,
		})
	}
	return sessions, nil
}

// Revoke invalidates a single token (single-device logout). Revoking a token
// that is already revoked, or that does not exist, is a no-op success; the
// conditional store write guarantees an existing RevokedAt timestamp is
// never overwritten.
func (s *SessionService) Revoke(ctx context.Context, tokenValue string) error {
	_, err := s.rm.Tokens().RevokeIfActive(ctx, tokenValue, s.now())
	return err
}

// RevokeAll invalidates every active token the user holds. It serves the
// explicit "log out everywhere" action and the reuse-detection cascade in
// the rotation engine. All revocations land in one transaction.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	now := s.now()
	return s.rm.WithinTx(ctx, func(ctx context.Context, repo tokens.Repository) error {
		active, err := repo.FindActiveByUser(ctx, userID, now)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}
		for _, token := range active {
			revokedAt := now
			token.RevokedAt = &revokedAt
		}
		return repo.UpdateMany(ctx, active)
	})
}
