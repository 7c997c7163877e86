// Package auth mints and verifies the short-lived signed access tokens that
// accompany opaque refresh tokens. Signing is HS256; key, issuer, and
// audience come from server configuration.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claim set plus a stable token-type marker and
// the opaque role list supplied by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string   `json:"token_type"`
	Roles     []string `json:"roles,omitempty"`
}

var validMethods = []string{jwt.SigningMethodHS256.Alg()}

// GenerateToken signs an access token for userID with the given issuer,
// audience, and validity window anchored at issuedAt.
func GenerateToken(userID string, roles []string, secretKey []byte, issuer, audience string, issuedAt time.Time, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(validity)),
		},
		TokenType: common.TokenTypeAccess,
		Roles:     roles,
	})
	return token.SignedString(secretKey)
}

// ParseToken verifies the signature and time claims and returns the parsed
// claim set. Expired tokens yield common.ErrTokenExpired; any other failure
// collapses to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods(validMethods))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != common.TokenTypeAccess {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// ParseTokenAllowExpired verifies the signature but skips time validation.
// Rotation uses it: refresh exists precisely to renew an access token that
// has already expired, so only the signature and subject matter there.
func ParseTokenAllowExpired(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods(validMethods), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	if claims.TokenType != common.TokenTypeAccess {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// GetUserIDFromToken returns the subject of a fully valid access token.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
