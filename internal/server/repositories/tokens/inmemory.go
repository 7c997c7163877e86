package tokens

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/common"
	"github.com/dmitrijs2005/tokenvault/internal/server/models"
)

// InMemoryRepository is a mutex-guarded Repository used in tests and local
// runs. It mirrors the Postgres semantics, including the conditional write of
// RevokeIfActive, which makes it usable for exercising rotation races.
type InMemoryRepository struct {
	mu     sync.Mutex
	byID   map[int64]*models.RefreshToken
	nextID int64
}

// NewInMemoryRepository constructs an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byID: make(map[int64]*models.RefreshToken)}
}

func (r *InMemoryRepository) Add(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Token == token.Token {
			return nil, common.ErrGenerationCollision
		}
	}
	r.nextID++
	stored := token.Clone()
	stored.ID = r.nextID
	r.byID[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[token.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if token.RevokedAt != nil {
		revoked := *token.RevokedAt
		stored.RevokedAt = &revoked
	} else {
		stored.RevokedAt = nil
	}
	return nil
}

func (r *InMemoryRepository) UpdateMany(ctx context.Context, toks []*models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// validate first so a bad batch leaves no partial writes
	for _, token := range toks {
		if _, ok := r.byID[token.ID]; !ok {
			return common.ErrorNotFound
		}
	}
	for _, token := range toks {
		stored := r.byID[token.ID]
		if token.RevokedAt != nil {
			revoked := *token.RevokedAt
			stored.RevokedAt = &revoked
		} else {
			stored.RevokedAt = nil
		}
	}
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, token.ID)
	return nil
}

func (r *InMemoryRepository) DeleteMany(ctx context.Context, toks []*models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range toks {
		delete(r.byID, token.ID)
	}
	return nil
}

func (r *InMemoryRepository) FindByValue(ctx context.Context, tokenValue string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range r.byID {
		if token.Token == tokenValue {
			return token.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *InMemoryRepository) FindByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	return r.filter(func(t *models.RefreshToken) bool {
		return t.UserID == userID
	}), nil
}

func (r *InMemoryRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.RefreshToken, error) {
	return r.filter(func(t *models.RefreshToken) bool {
		return t.UserID == userID && t.IsActive(now)
	}), nil
}

func (r *InMemoryRepository) FindExpired(ctx context.Context, now time.Time) ([]*models.RefreshToken, error) {
	return r.filter(func(t *models.RefreshToken) bool {
		return t.IsExpired(now)
	}), nil
}

func (r *InMemoryRepository) FindCleanupCandidates(ctx context.Context, now time.Time) ([]*models.RefreshToken, error) {
	return r.filter(func(t *models.RefreshToken) bool {
		return t.IsExpired(now) || t.IsRevoked()
	}), nil
}

func (r *InMemoryRepository) RevokeIfActive(ctx context.Context, tokenValue string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, token := range r.byID {
		if token.Token != tokenValue {
			continue
		}
		if token.RevokedAt != nil {
			return false, nil
		}
		revoked := now
		token.RevokedAt = &revoked
		return true, nil
	}
	return false, nil
}

// Snapshot returns a deep copy of the stored tokens. Together with Restore it
// gives the in-memory manager transaction rollback. The ID sequence is not
// part of the snapshot; like a database sequence it never rolls back.
func (r *InMemoryRepository) Snapshot() map[int64]*models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make(map[int64]*models.RefreshToken, len(r.byID))
	for id, token := range r.byID {
		copied[id] = token.Clone()
	}
	return copied
}

// Restore replaces the stored tokens with a previously taken snapshot.
func (r *InMemoryRepository) Restore(state map[int64]*models.RefreshToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = state
}

// filter returns clones of all tokens matching pred, oldest first.
func (r *InMemoryRepository) filter(pred func(*models.RefreshToken) bool) []*models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.RefreshToken
	for _, token := range r.byID {
		if pred(token) {
			result = append(result, token.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
