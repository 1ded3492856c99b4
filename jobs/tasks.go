package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantIntegrity scans grant tables for rows pointing at catalog
	// entries that were removed out of band.
	TaskGrantIntegrity = "grants:integrity"
	// TaskAuditCleanup prunes old audit log rows.
	TaskAuditCleanup = "audit:cleanup"
	// TaskSessionSweep removes expired session records.
	TaskSessionSweep = "sessions:sweep"
	// TaskMutationKeyCleanup prunes consumed mutation replay keys.
	TaskMutationKeyCleanup = "mutations:cleanup"
)

// GrantIntegrityPayload carries scheduling metadata for the integrity scan.
type GrantIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewGrantIntegrityTask constructs an Asynq task for the grant integrity scan.
func NewGrantIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(GrantIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// RetentionPayload bounds how far back a cleanup task keeps rows.
type RetentionPayload struct {
	KeepFor time.Duration `json:"keep_for"`
}

// NewAuditCleanupTask constructs the audit retention task.
func NewAuditCleanupTask(keepFor time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(RetentionPayload{KeepFor: keepFor})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewMutationKeyCleanupTask constructs the replay-key retention task.
func NewMutationKeyCleanupTask(keepFor time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(RetentionPayload{KeepFor: keepFor})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMutationKeyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewSessionSweepTask constructs the expired-session sweep task.
func NewSessionSweepTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskSessionSweep, nil, asynq.Queue(QueueDefault)), nil
}
