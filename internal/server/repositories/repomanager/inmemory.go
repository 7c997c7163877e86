package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/tokens"
)

// InMemoryRepositoryManager implements RepositoryManager over the in-memory
// token repository. WithinTx serializes callers on a mutex and rolls the
// repository back to a pre-call snapshot when the callback fails; it exists
// so service-level tests, including rotation race tests, can run without a
// database.
type InMemoryRepositoryManager struct {
	txMu sync.Mutex
	repo *tokens.InMemoryRepository
}

// NewInMemoryRepositoryManager constructs a manager over a fresh repository.
func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{repo: tokens.NewInMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}

func (m *InMemoryRepositoryManager) Tokens() tokens.Repository {
	return m.repo
}

func (m *InMemoryRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repo tokens.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.repo.Snapshot()
	if err := fn(ctx, m.repo); err != nil {
		m.repo.Restore(snapshot)
		return err
	}
	return nil
}
