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
)

// errLostRotationRace marks the transaction branch where another rotation
// revoked the token first. It never escapes Rotate.
var errLostRotationRace = errors.New("lost rotation race")

// RotationService is the state machine behind every refresh call: it
// validates the presented refresh token, detects replay, and atomically
// swaps the old token for a new pair.
type RotationService struct {
	rm                          repomanager.RepositoryManager
	issuer                      *IssuerService
	sessions                    *SessionService
	jwtSecret                   []byte
	jwtIssuer                   string
	jwtAudience                 string
	accessTokenValidityDuration time.Duration
	rotateOnUse                 bool
	now                         func() time.Time
}

// NewRotationService constructs a RotationService from server config and its
// collaborating services.
func NewRotationService(rm repomanager.RepositoryManager, issuer *IssuerService, sessions *SessionService, cfg *config.Config) *RotationService {
	return &RotationService{
		rm:                          rm,
		issuer:                      issuer,
		sessions:                    sessions,
		jwtSecret:                   []byte(cfg.SecretKey),
		jwtIssuer:                   cfg.JWTIssuer,
		jwtAudience:                 cfg.JWTAudience,
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		rotateOnUse:                 cfg.RotateOnUse,
		now:                         time.Now,
	}
}

// Rotate exchanges a refresh/access token pair for a new one.
//
// A presented token that is already revoked is a replay signal: it was
// rotated away once, so either it leaked or a client replayed a completed
// call. In both cases every active session of the owning user is revoked
// before the call fails. An expired token fails without any cascade; expired
// tokens are already harmless. The access token only has to carry a valid
// signature whose subject matches the stored owner; its own expiry is
// deliberately ignored, since refreshing an expired access token is the
// whole point of the call.
//
// Validation failures come back as common.ErrorNotFound,
// common.ErrRefreshTokenExpired, common.ErrTokenReuseDetected,
// common.ErrInvalidToken, or common.ErrTokenMismatch. Callers must collapse
// these into one generic response.
func (s *RotationService) Rotate(ctx context.Context, refreshToken, accessToken string, device DeviceContext) (*TokenPair, error) {
	now := s.now()

	stored, err := s.rm.Tokens().FindByValue(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	switch stored.State(now) {
	case models.StateExpired:
		return nil, common.ErrRefreshTokenExpired
	case models.StateRevoked:
		if err := s.sessions.RevokeAll(ctx, stored.UserID); err != nil {
			return nil, err
		}
		return nil, common.ErrTokenReuseDetected
	}

	claims, err := auth.ParseTokenAllowExpired(accessToken, s.jwtSecret)
	if err != nil {
		return nil, err
	}
	if claims.Subject != stored.UserID {
		return nil, common.ErrTokenMismatch
	}

	carried := carryDevice(stored, device)

	if !s.rotateOnUse {
		return s.renewAccessOnly(stored, claims.Roles, now)
	}

	var pair *TokenPair
	err = s.rm.WithinTx(ctx, func(ctx context.Context, repo tokens.Repository) error {
		won, err := repo.RevokeIfActive(ctx, stored.Token, now)
		if err != nil {
			return err
		}
		if !won {
			return errLostRotationRace
		}
		pair, err = s.issuer.Issue(ctx, repo, stored.UserID, claims.Roles, carried)
		return err
	})
	if errors.Is(err, errLostRotationRace) {
		// A concurrent rotation got there first; treat this call as replay.
		if revErr := s.sessions.RevokeAll(ctx, stored.UserID); revErr != nil {
			return nil, revErr
		}
		return nil, common.ErrTokenReuseDetected
	}
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// renewAccessOnly serves the rotateOnUse=false mode: the refresh token stays
// in place and only a fresh access token is minted.
func (s *RotationService) renewAccessOnly(stored *models.RefreshToken, roles []string, now time.Time) (*TokenPair, error) {
	accessToken, err := auth.GenerateToken(stored.UserID, roles, s.jwtSecret, s.jwtIssuer, s.jwtAudience, now, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(s.accessTokenValidityDuration),
		RefreshToken:     stored.Token,
		RefreshExpiresAt: stored.ExpiresAt,
	}, nil
}

// carryDevice keeps the device lineage of the presented token and lets the
// current request override the volatile parts (name, address, agent).
func carryDevice(stored *models.RefreshToken, device DeviceContext) DeviceContext {
	carried := DeviceContext{
		DeviceID:   stored.DeviceID,
		DeviceName: stored.DeviceName,
		IPAddress:  stored.IPAddress,
		UserAgent:  stored.UserAgent,
	}
	if device.DeviceName != "" {
		carried.DeviceName = device.DeviceName
	}
	if device.IPAddress != "" {
		carried.IPAddress = device.IPAddress
	}
	if device.UserAgent != "" {
		carried.UserAgent = device.UserAgent
	}
	return carried
}
