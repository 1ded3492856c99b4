package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voyagehq/voyage/internal/app"
	"github.com/voyagehq/voyage/internal/auth"
	jobmetrics "github.com/voyagehq/voyage/internal/jobs"
	"github.com/voyagehq/voyage/internal/platform/cache"
	"github.com/voyagehq/voyage/internal/platform/db"
	"github.com/voyagehq/voyage/internal/shared"
	"github.com/voyagehq/voyage/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	integrityJob := jobs.NewGrantIntegrityJob(pool, logger, metrics)
	maintenance := &jobs.MaintenanceJobs{
		Audit:   shared.NewAuditLogger(pool),
		Replay:  shared.NewReplayGuard(pool),
		Auth:    auth.NewService(auth.NewRepository(pool)),
		Logger:  logger,
		Metrics: metrics,
	}

	integrityTask, err := jobs.NewGrantIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	auditTask, err := jobs.NewAuditCleanupTask(90 * 24 * time.Hour)
	if err != nil {
		logger.Error("build audit cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	mutationTask, err := jobs.NewMutationKeyCleanupTask(7 * 24 * time.Hour)
	if err != nil {
		logger.Error("build mutation cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewSessionSweepTask()
	if err != nil {
		logger.Error("build session sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGrantIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskAuditCleanup, Handler: maintenance.HandleAuditCleanup},
			{Type: jobs.TaskMutationKeyCleanup, Handler: maintenance.HandleMutationKeyCleanup},
			{Type: jobs.TaskSessionSweep, Handler: maintenance.HandleSessionSweep},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: mutationTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
