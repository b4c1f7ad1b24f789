package repository

import (
	"context"

	"github.com/examlock/examlock-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles identity data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, email, name, password_hash, roles, two_factor_secret, two_factor_enabled, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	var roles []string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &roles,
		&u.TwoFactorSecret, &u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Roles = make([]model.Role, 0, len(roles))
	for _, r := range roles {
		u.Roles = append(u.Roles, model.Role(r))
	}
	return u, nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, string(role))
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, roles)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.PasswordHash, roles,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// UpdateRoles replaces the user's role set. Callers audit this action.
func (r *UserRepository) UpdateRoles(ctx context.Context, id uuid.UUID, roles []model.Role) error {
	raw := make([]string, 0, len(roles))
	for _, role := range roles {
		raw = append(raw, string(role))
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET roles = $1, updated_at = NOW() WHERE id = $2`, raw, id)
	return err
}

// SetTwoFactorSecret stores a pending (not yet enabled) two-factor secret.
func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET two_factor_secret = $1, two_factor_enabled = FALSE, updated_at = NOW()
		 WHERE id = $2`, secret, id)
	return err
}

// SetTwoFactorEnabled flips the enabled flag for the stored secret.
func (r *UserRepository) SetTwoFactorEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	if enabled {
		_, err := r.pool.Exec(ctx,
			`UPDATE users SET two_factor_enabled = TRUE, updated_at = NOW()
			 WHERE id = $1 AND two_factor_secret <> ''`, id)
		return err
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET two_factor_enabled = FALSE, two_factor_secret = '', updated_at = NOW()
		 WHERE id = $1`, id)
	return err
}
