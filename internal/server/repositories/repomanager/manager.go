// Package repomanager wires repositories to their storage backend and hides
// transaction begin/commit/rollback from the service layer.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/tokens"
)

// RepositoryManager hands out repositories and runs multi-write operations
// inside a single transaction.
type RepositoryManager interface {
	// RunMigrations brings the schema up to date.
	RunMigrations(ctx context.Context) error

	// Close releases the underlying storage handle.
	Close() error

	// Tokens returns the refresh-token repository.
	Tokens() tokens.Repository

	// WithinTx runs fn with a transaction-bound repository. All writes fn
	// performs land together or not at all.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo tokens.Repository) error) error
}
