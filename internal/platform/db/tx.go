package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagehq/voyage/internal/shared"
)

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithTimeout runs fn under a bounded deadline. A store call must never hang;
// expiry surfaces shared.ErrUnavailable so callers can distinguish an outage
// from a validation failure.
func WithTimeout(ctx context.Context, limit time.Duration, fn func(context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("platform/db: %w: %v", shared.ErrUnavailable, err)
	}
	return err
}
