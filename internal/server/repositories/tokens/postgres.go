package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/common"
	"github.com/dmitrijs2005/tokenvault/internal/dbx"
	"github.com/dmitrijs2005/tokenvault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

const tokenColumns = `id, token, user_id, expires_at, created_at, revoked_at,
	device_id, device_name, ip_address, user_agent`

// PostgresRepository implements Repository over dbx.DBTX (satisfied by both
// *sql.DB and *sql.Tx), so the same code runs standalone or inside WithTx.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// wrapWriteError maps driver failures onto the shared sentinels: unique
// violations on the token value become ErrGenerationCollision, everything
// else surfaces as ErrStoreUnavailable so callers can tell a refused write
// from a broken store.
func wrapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %v", common.ErrGenerationCollision, err)
	}
	return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
}

func (r *PostgresRepository) Add(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens
			(token, user_id, expires_at, created_at, device_id, device_name, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	created := token.Clone()
	err := r.db.QueryRowContext(ctx, query,
		token.Token, token.UserID, token.ExpiresAt, token.CreatedAt,
		token.DeviceID, token.DeviceName, token.IPAddress, token.UserAgent,
	).Scan(&created.ID)
	if err != nil {
		return nil, wrapWriteError(err)
	}
	return created, nil
}

func (r *PostgresRepository) Update(ctx context.Context, token *models.RefreshToken) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.RevokedAt); err != nil {
		return wrapWriteError(err)
	}
	return nil
}

func (r *PostgresRepository) UpdateMany(ctx context.Context, toks []*models.RefreshToken) error {
	if len(toks) == 0 {
		return nil
	}
	// Single statement so a bulk revocation lands atomically even when the
	// repository is not bound to an explicit transaction.
	ids := make([]int64, len(toks))
	revokedAts := make([]*time.Time, len(toks))
	for i, token := range toks {
		ids[i] = token.ID
		revokedAts[i] = token.RevokedAt
	}
	query := `
		UPDATE refresh_tokens AS t
		SET revoked_at = u.revoked_at
		FROM unnest($1::bigint[], $2::timestamptz[]) AS u(id, revoked_at)
		WHERE t.id = u.id
	`
	if _, err := r.db.ExecContext(ctx, query, ids, revokedAts); err != nil {
		return wrapWriteError(err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token *models.RefreshToken) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token.ID); err != nil {
		return wrapWriteError(err)
	}
	return nil
}

func (r *PostgresRepository) DeleteMany(ctx context.Context, toks []*models.RefreshToken) error {
	if len(toks) == 0 {
		return nil
	}
	// Single bulk statement so one sweeper tick does not hold row locks
	// across multiple round trips.
	ids := make([]int64, len(toks))
	for i, token := range toks {
		ids[i] = token.ID
	}
	query := `
		DELETE FROM refresh_tokens
		WHERE id = ANY($1)
	`
	if _, err := r.db.ExecContext(ctx, query, ids); err != nil {
		return wrapWriteError(err)
	}
	return nil
}

func (r *PostgresRepository) FindByValue(ctx context.Context, tokenValue string) (*models.RefreshToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE token = $1
	`
	token := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, tokenValue).Scan(
		&token.ID, &token.Token, &token.UserID, &token.ExpiresAt, &token.CreatedAt,
		&token.RevokedAt, &token.DeviceID, &token.DeviceName, &token.IPAddress, &token.UserAgent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	return r.queryTokens(ctx, query, userID)
}

func (r *PostgresRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at, id
	`
	return r.queryTokens(ctx, query, userID, now)
}

func (r *PostgresRepository) FindExpired(ctx context.Context, now time.Time) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE expires_at <= $1
	`
	return r.queryTokens(ctx, query, now)
}

func (r *PostgresRepository) FindCleanupCandidates(ctx context.Context, now time.Time) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE expires_at <= $1 OR revoked_at IS NOT NULL
	`
	return r.queryTokens(ctx, query, now)
}

func (r *PostgresRepository) RevokeIfActive(ctx context.Context, tokenValue string, now time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token = $1 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, tokenValue, now)
	if err != nil {
		return false, wrapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) queryTokens(ctx context.Context, query string, args ...any) ([]*models.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.RefreshToken
	for rows.Next() {
		token := &models.RefreshToken{}
		if err := rows.Scan(
			&token.ID, &token.Token, &token.UserID, &token.ExpiresAt, &token.CreatedAt,
			&token.RevokedAt, &token.DeviceID, &token.DeviceName, &token.IPAddress, &token.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
