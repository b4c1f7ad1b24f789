package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rotation outcomes surfaced to the auth service.
var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrRefreshTokenRevoked  = errors.New("refresh token revoked")
)

// RefreshTokenRepository handles refresh-token family persistence. Revocation
// must survive process restarts, so families live in PostgreSQL.
type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

// Create inserts a new refresh token row (start of a family or a rotation
// successor).
func (r *RefreshTokenRepository) Create(ctx context.Context, t *model.RefreshToken) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO refresh_tokens (user_id, family_id, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		t.UserID, t.FamilyID, t.TokenHash, t.ExpiresAt,
	).Scan(&t.ID, &t.CreatedAt)
}

// Rotate marks the presented token used and inserts next within the same
// family, all in one transaction. Presenting an already-used or revoked token
// is treated as theft: the whole family is revoked and ErrRefreshTokenRevoked
// is returned.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, tokenHash string, next *model.RefreshToken) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current model.RefreshToken
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, family_id, expires_at, used_at, revoked_at
		 FROM refresh_tokens
		 WHERE token_hash = $1
		 FOR UPDATE`, tokenHash,
	).Scan(&current.ID, &current.UserID, &current.FamilyID,
		&current.ExpiresAt, &current.UsedAt, &current.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRefreshTokenNotFound
		}
		return fmt.Errorf("lookup token: %w", err)
	}

	if current.RevokedAt != nil || current.UsedAt != nil {
		// Single-use violated: revoke every token in the family.
		if _, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked_at = NOW()
			 WHERE family_id = $1 AND revoked_at IS NULL`, current.FamilyID); err != nil {
			return fmt.Errorf("revoke family: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return ErrRefreshTokenRevoked
	}

	if time.Now().After(current.ExpiresAt) {
		return ErrRefreshTokenExpired
	}

	if _, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET used_at = NOW() WHERE id = $1`, current.ID); err != nil {
		return fmt.Errorf("mark used: %w", err)
	}

	next.UserID = current.UserID
	next.FamilyID = current.FamilyID
	err = tx.QueryRow(ctx,
		`INSERT INTO refresh_tokens (user_id, family_id, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		next.UserID, next.FamilyID, next.TokenHash, next.ExpiresAt,
	).Scan(&next.ID, &next.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert successor: %w", err)
	}

	return tx.Commit(ctx)
}

// RevokeFamily revokes the whole family the presented token belongs to.
// Idempotent: unknown or already-revoked tokens are not an error.
func (r *RefreshTokenRepository) RevokeFamily(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW()
		 WHERE family_id = (SELECT family_id FROM refresh_tokens WHERE token_hash = $1)
		   AND revoked_at IS NULL`, tokenHash)
	return err
}
