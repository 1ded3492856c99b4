package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns active users ordered by id, honouring pagination.
func (r *Repository) ListUsers(ctx context.Context, page shared.Pagination) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, name, is_active, created_at, updated_at FROM users WHERE is_active ORDER BY id LIMIT $1 OFFSET $2`, page.PerPage, page.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers returns the number of active accounts.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_active`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// LookupIdentity resolves the identity fields the profile builder needs.
func (r *Repository) LookupIdentity(ctx context.Context, userID int64) (profile.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, email FROM users WHERE id = $1 AND is_active`, userID)
	var identity profile.Identity
	if err := row.Scan(&identity.ID, &identity.Name, &identity.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Identity{}, shared.ErrNotFound
		}
		return profile.Identity{}, err
	}
	return identity, nil
}

// UserExists reports whether an active account with the id exists.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND is_active)`, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

var _ profile.IdentitySource = (*Repository)(nil)
