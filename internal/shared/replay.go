package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReplayGuard persists client-supplied mutation keys so a re-sent bulk
// replace is detected instead of applied twice. Mutations are full-set
// replacements, so a silent replay after an uncertain first attempt is a
// correctness hazard rather than a harmless retry.
type ReplayGuard struct {
	pool *pgxpool.Pool
}

// NewReplayGuard constructs the guard.
func NewReplayGuard(pool *pgxpool.Pool) *ReplayGuard {
	return &ReplayGuard{pool: pool}
}

// ErrReplayedMutation indicates the mutation key was already processed.
var ErrReplayedMutation = errors.New("mutation already processed")

// CheckAndInsert records the key, failing if it was seen before for the scope.
func (g *ReplayGuard) CheckAndInsert(ctx context.Context, key, scope string) error {
	if g == nil {
		return errors.New("replay guard not initialised")
	}
	if key == "" {
		return errors.New("mutation key required")
	}
	if scope == "" {
		return errors.New("mutation scope required")
	}
	_, err := g.pool.Exec(ctx, `INSERT INTO mutation_keys (key, scope, created_at) VALUES ($1, $2, $3)`, key, scope, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrReplayedMutation
		}
		return err
	}
	return nil
}

// Delete removes a key, typically to roll back after a failed mutation so the
// caller may legitimately retry.
func (g *ReplayGuard) Delete(ctx context.Context, key string) error {
	if g == nil {
		return nil
	}
	if key == "" {
		return errors.New("mutation key required")
	}
	_, err := g.pool.Exec(ctx, `DELETE FROM mutation_keys WHERE key=$1`, key)
	return err
}

// Cleanup removes entries older than retention.
func (g *ReplayGuard) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if g == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := g.pool.Exec(ctx, `DELETE FROM mutation_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
