package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/logging"
	"github.com/dmitrijs2005/tokenvault/internal/server/auth"
	"github.com/dmitrijs2005/tokenvault/internal/server/config"
	"github.com/dmitrijs2005/tokenvault/internal/server/models"
	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

// --- shared helpers ---

type testStack struct {
	rm       *repomanager.InMemoryRepositoryManager
	cfg      *config.Config
	issuer   *IssuerService
	sessions *SessionService
	rotation *RotationService
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	return cfg
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	cfg := newTestConfig()
	rm := repomanager.NewInMemoryRepositoryManager()
	issuer := NewIssuerService(rm, cfg)
	sessions := NewSessionService(rm, cfg)
	rotation := NewRotationService(rm, issuer, sessions, cfg)
	return &testStack{rm: rm, cfg: cfg, issuer: issuer, sessions: sessions, rotation: rotation}
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// accessTokenFor mints a valid access token for userID with the stack's key.
func (s *testStack) accessTokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, nil, []byte(s.cfg.SecretKey), s.cfg.JWTIssuer, s.cfg.JWTAudience, time.Now(), time.Hour)
	require.NoError(t, err)
	return tok
}

// addToken stores a crafted token directly, bypassing the issuer.
func (s *testStack) addToken(t *testing.T, token *models.RefreshToken) *models.RefreshToken {
	t.Helper()
	stored, err := s.rm.Tokens().Add(context.Background(), token)
	require.NoError(t, err)
	return stored
}

func (s *testStack) findByValue(t *testing.T, value string) *models.RefreshToken {
	t.Helper()
	token, err := s.rm.Tokens().FindByValue(context.Background(), value)
	require.NoError(t, err)
	return token
}

func (s *testStack) activeCount(t *testing.T, userID string) int {
	t.Helper()
	active, err := s.rm.Tokens().FindActiveByUser(context.Background(), userID, time.Now())
	require.NoError(t, err)
	return len(active)
}

func expiredToken(userID, value string) *models.RefreshToken {
	return &models.RefreshToken{
		Token:     value,
		UserID:    userID,
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
}

func activeToken(userID, value string) *models.RefreshToken {
	return &models.RefreshToken{
		Token:     value,
		UserID:    userID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now(),
	}
}

func revokedToken(userID, value string, revokedAt time.Time) *models.RefreshToken {
	return &models.RefreshToken{
		Token:     value,
		UserID:    userID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now().Add(-time.Hour),
		RevokedAt: &revokedAt,
	}
}

func requireRevoked(t *testing.T, token *models.RefreshToken) {
	t.Helper()
	require.True(t, token.IsRevoked(), "token %s must be revoked", token.Token)
}
