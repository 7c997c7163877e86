// Package services contains the server-side business logic: issuing token
// pairs, rotating refresh tokens, managing sessions, and sweeping dead
// tokens out of storage.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/common"
	"github.com/dmitrijs2005/tokenvault/internal/server/auth"
	"github.com/dmitrijs2005/tokenvault/internal/server/config"
	"github.com/dmitrijs2005/tokenvault/internal/server/models"
	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/tokens"
	"github.com/google/uuid"
)

// DeviceContext carries the session-identifying metadata captured when a
// token pair is issued.
type DeviceContext struct {
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

// TokenPair bundles a short-lived access token and a long-lived refresh
// token together with their expiry timestamps.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// refreshTokenByteLength is the number of random bytes per refresh token,
// 256 bits before hex encoding.
const refreshTokenByteLength = 32

// maxGenerationAttempts bounds retries when a freshly generated token value
// collides with a stored one.
const maxGenerationAttempts = 3

// IssuerService mints access/refresh token pairs. It is a pure function of
// (user, device context) plus the clock and the random source; its only side
// effect is the single store write persisting the refresh token.
type IssuerService struct {
	rm                           repomanager.RepositoryManager
	jwtSecret                    []byte
	jwtIssuer                    string
	jwtAudience                  string
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

// NewIssuerService constructs an IssuerService from server config.
func NewIssuerService(rm repomanager.RepositoryManager, cfg *config.Config) *IssuerService {
	return &IssuerService{
		rm:                           rm,
		jwtSecret:                    []byte(cfg.SecretKey),
		jwtIssuer:                    cfg.JWTIssuer,
		jwtAudience:                  cfg.JWTAudience,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

// Issue mints a token pair for userID and persists the refresh token through
// repo with the supplied device metadata. Passing the repository explicitly
// lets rotation run the write inside its own transaction; plain logins pass
// rm.Tokens(). An empty DeviceID is replaced with a fresh identifier so
// every login starts its own device lineage.
func (s *IssuerService) Issue(ctx context.Context, repo tokens.Repository, userID string, roles []string, device DeviceContext) (*TokenPair, error) {
	now := s.now()

	if device.DeviceID == "" {
		device.DeviceID = uuid.NewString()
	}

	accessToken, err := auth.GenerateToken(userID, roles, s.jwtSecret, s.jwtIssuer, s.jwtAudience, now, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	refreshExpiresAt := now.Add(s.refreshTokenValidityDuration)

	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		value, err := common.MakeRandHexString(refreshTokenByteLength)
		if err != nil {
			return nil, common.ErrorInternal
		}

		_, err = repo.Add(ctx, &models.RefreshToken{
			Token:      value,
			UserID:     userID,
			ExpiresAt:  refreshExpiresAt,
			CreatedAt:  now,
			DeviceID:   device.DeviceID,
			DeviceName: device.DeviceName,
			IPAddress:  device.IPAddress,
			UserAgent:  device.UserAgent,
		})
		if errors.Is(err, common.ErrGenerationCollision) {
			// never proceed on a duplicate value; draw again
			continue
		}
		if err != nil {
			return nil, err
		}

		return &TokenPair{
			AccessToken:      accessToken,
			AccessExpiresAt:  now.Add(s.accessTokenValidityDuration),
			RefreshToken:     value,
			RefreshExpiresAt: refreshExpiresAt,
		}, nil
	}

	return nil, common.ErrGenerationCollision
}

// IssueForLogin is the entry point used by the login flow: it issues against
// the manager's default repository.
func (s *IssuerService) IssueForLogin(ctx context.Context, userID string, roles []string, device DeviceContext) (*TokenPair, error) {
	return s.Issue(ctx, s.rm.Tokens(), userID, roles, device)
}
