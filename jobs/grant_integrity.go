package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/voyagehq/voyage/internal/jobs"
)

// GrantIntegrityJob scans the grant tables for rows referencing roles,
// permissions, programs or users that no longer exist in the catalog. Grants
// are only ever written against catalog ids, so orphans indicate out-of-band
// changes worth surfacing.
type GrantIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGrantIntegrityJob initialises the integrity scan handler.
func NewGrantIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *GrantIntegrityJob {
	return &GrantIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

type orphanScan struct {
	table string
	query string
}

var orphanScans = []orphanScan{
	{
		table: "role_permissions",
		query: `SELECT rp.program_id, COUNT(*) FROM role_permissions rp
			WHERE NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = rp.role_id)
			   OR NOT EXISTS (SELECT 1 FROM permissions p WHERE p.id = rp.permission_id)
			   OR NOT EXISTS (SELECT 1 FROM programs pr WHERE pr.id = rp.program_id)
			GROUP BY rp.program_id`,
	},
	{
		table: "user_roles",
		query: `SELECT ur.program_id, COUNT(*) FROM user_roles ur
			WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = ur.user_id)
			   OR NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = ur.role_id)
			   OR NOT EXISTS (SELECT 1 FROM programs pr WHERE pr.id = ur.program_id)
			GROUP BY ur.program_id`,
	},
	{
		table: "user_permissions",
		query: `SELECT up.program_id, COUNT(*) FROM user_permissions up
			WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = up.user_id)
			   OR NOT EXISTS (SELECT 1 FROM permissions p WHERE p.id = up.permission_id)
			   OR NOT EXISTS (SELECT 1 FROM programs pr WHERE pr.id = up.program_id)
			GROUP BY up.program_id`,
	},
}

// Handle executes the integrity scan.
func (j *GrantIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("grant integrity: handler not configured")
	}
	var payload GrantIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskGrantIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting grant integrity scan")
	start := time.Now()

	total := 0
	for _, scan := range orphanScans {
		count, err := j.scanTable(ctx, scan, logger)
		if err != nil {
			resultErr = err
			logger.Error("integrity scan failed", slog.String("table", scan.table), slog.Any("error", err))
			return resultErr
		}
		total += count
	}

	logger.Info("completed grant integrity scan",
		slog.Int("orphans", total),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *GrantIntegrityJob) scanTable(ctx context.Context, scan orphanScan, logger *slog.Logger) (int, error) {
	if j.Pool == nil {
		return 0, errors.New("grant integrity: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, scan.query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var programID int64
		var count int
		if err := rows.Scan(&programID, &count); err != nil {
			return total, err
		}
		logger.Warn("orphaned grant rows detected",
			slog.String("table", scan.table),
			slog.Int64("program_id", programID),
			slog.Int("count", count),
		)
		j.metrics().AddOrphans(scan.table, programID, count)
		total += count
	}
	return total, rows.Err()
}

func (j *GrantIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return nil
}

func (j *GrantIntegrityJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
