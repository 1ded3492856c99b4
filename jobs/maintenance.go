package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voyagehq/voyage/internal/auth"
	jobmetrics "github.com/voyagehq/voyage/internal/jobs"
	"github.com/voyagehq/voyage/internal/shared"
)

// MaintenanceJobs bundles the retention handlers that keep the audit log,
// replay keys and session table from growing unbounded.
type MaintenanceJobs struct {
	Audit   *shared.AuditLogger
	Replay  *shared.ReplayGuard
	Auth    *auth.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

const defaultRetention = 90 * 24 * time.Hour

// HandleAuditCleanup prunes audit log rows past the retention window.
func (m *MaintenanceJobs) HandleAuditCleanup(ctx context.Context, t *asynq.Task) error {
	if m == nil || m.Audit == nil {
		return errors.New("audit cleanup: handler not configured")
	}
	tracker := m.metrics().Track(TaskAuditCleanup)
	removed, err := m.Audit.Cleanup(ctx, retention(t))
	if err != nil {
		m.logger().Error("audit cleanup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	m.logger().Info("audit cleanup finished", slog.Int64("removed", removed))
	return tracker.End(nil)
}

// HandleMutationKeyCleanup prunes consumed replay keys past the retention
// window. Keys only guard the retry window of a single save, so anything old
// enough to be pruned can never be replayed anyway.
func (m *MaintenanceJobs) HandleMutationKeyCleanup(ctx context.Context, t *asynq.Task) error {
	if m == nil || m.Replay == nil {
		return errors.New("mutation cleanup: handler not configured")
	}
	tracker := m.metrics().Track(TaskMutationKeyCleanup)
	removed, err := m.Replay.Cleanup(ctx, retention(t))
	if err != nil {
		m.logger().Error("mutation key cleanup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	m.logger().Info("mutation key cleanup finished", slog.Int64("removed", removed))
	return tracker.End(nil)
}

// HandleSessionSweep removes expired session records.
func (m *MaintenanceJobs) HandleSessionSweep(ctx context.Context, t *asynq.Task) error {
	if m == nil || m.Auth == nil {
		return errors.New("session sweep: handler not configured")
	}
	tracker := m.metrics().Track(TaskSessionSweep)
	removed, err := m.Auth.SweepExpiredSessions(ctx)
	if err != nil {
		m.logger().Error("session sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	m.logger().Info("session sweep finished", slog.Int64("removed", removed))
	return tracker.End(nil)
}

func retention(t *asynq.Task) time.Duration {
	var payload RetentionPayload
	if t == nil || len(t.Payload()) == 0 {
		return defaultRetention
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.KeepFor <= 0 {
		return defaultRetention
	}
	return payload.KeepFor
}

func (m *MaintenanceJobs) metrics() *jobmetrics.Metrics {
	if m != nil && m.Metrics != nil {
		return m.Metrics
	}
	return nil
}

func (m *MaintenanceJobs) logger() *slog.Logger {
	if m != nil && m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
