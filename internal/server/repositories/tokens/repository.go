// Package tokens declares the server-side repository contract for managing
// refresh tokens in persistent storage.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/server/models"
)

// Repository defines operations for storing, querying, and revoking refresh
// tokens. The only mutation Update/UpdateMany persist is RevokedAt; every
// other field is immutable once a token has been added.
//
// UpdateMany and DeleteMany apply all rows in one atomic step; a failed bulk
// call leaves no partial writes behind.
type Repository interface {
	// Add inserts a new token and returns it with its store-assigned ID.
	// A duplicate token value yields common.ErrGenerationCollision.
	Add(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)

	// Update persists the RevokedAt field of an existing token.
	Update(ctx context.Context, token *models.RefreshToken) error

	// UpdateMany persists RevokedAt for each of the given tokens.
	UpdateMany(ctx context.Context, toks []*models.RefreshToken) error

	// Delete removes a token. Deleting a non-existent token is not an error.
	Delete(ctx context.Context, token *models.RefreshToken) error

	// DeleteMany removes all of the given tokens.
	DeleteMany(ctx context.Context, toks []*models.RefreshToken) error

	// FindByValue looks up a token by its opaque value and returns
	// common.ErrorNotFound when absent. This is the hot path for every
	// refresh request.
	FindByValue(ctx context.Context, tokenValue string) (*models.RefreshToken, error)

	// FindByUser returns all tokens owned by userID, oldest first.
	FindByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error)

	// FindActiveByUser returns the user's tokens that are neither revoked
	// nor expired at the given time.
	FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.RefreshToken, error)

	// FindExpired returns all tokens past their expiry at the given time.
	FindExpired(ctx context.Context, now time.Time) ([]*models.RefreshToken, error)

	// FindCleanupCandidates returns all tokens that are expired or revoked,
	// the feed for the cleanup sweeper.
	FindCleanupCandidates(ctx context.Context, now time.Time) ([]*models.RefreshToken, error)

	// RevokeIfActive sets RevokedAt on the token with the given value only
	// if it is not already revoked, and reports whether this call performed
	// the revocation. This conditional write is the serialization point for
	// two rotations racing on the same token: exactly one caller observes
	// true.
	RevokeIfActive(ctx context.Context, tokenValue string, now time.Time) (bool, error)
}
