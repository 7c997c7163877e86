// Package common defines shared constants and sentinel errors used across
// TokenVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound          = errors.New("not found")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrGenerationCollision = errors.New("token value collision")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrTokenReuseDetected  = errors.New("refresh token reuse detected")
	ErrTokenMismatch       = errors.New("token subject mismatch")
)
