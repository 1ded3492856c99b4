package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voyagehq/voyage/internal/app"
	"github.com/voyagehq/voyage/internal/auth"
	"github.com/voyagehq/voyage/internal/authz"
	"github.com/voyagehq/voyage/internal/grants"
	"github.com/voyagehq/voyage/internal/observability"
	"github.com/voyagehq/voyage/internal/passengers"
	"github.com/voyagehq/voyage/internal/platform/cache"
	"github.com/voyagehq/voyage/internal/platform/db"
	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/registry"
	"github.com/voyagehq/voyage/internal/shared"
	"github.com/voyagehq/voyage/internal/users"
	"github.com/voyagehq/voyage/jobs"
)

// assignmentSource adapts the grant store to the shape the profile builder
// reads from.
type assignmentSource struct {
	grants *grants.Service
}

func (s assignmentSource) ListUserAssignments(ctx context.Context, userID int64) ([]profile.ProgramAssignment, error) {
	stored, err := s.grants.ListUserAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]profile.ProgramAssignment, 0, len(stored))
	for _, a := range stored {
		out = append(out, profile.ProgramAssignment{
			ID:          a.ProgramID,
			Name:        a.ProgramName,
			Roles:       a.Roles,
			Permissions: a.Permissions,
		})
	}
	return out, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "voyage_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	replayGuard := shared.NewReplayGuard(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, cfg.IsProduction())

	registryRepo := registry.NewRepository(dbpool)
	registryService := registry.NewService(registryRepo, cfg.GrantCallTimeout)

	usersRepo := users.NewRepository(dbpool)

	tracker := grants.NewSaveTracker(cfg.SaveStatusWindow)
	grantsRepo := grants.NewRepository(dbpool)
	grantsService := grants.NewService(grantsRepo, registryService, usersRepo, tracker, logger, grants.ServiceConfig{
		Audit:       auditLogger,
		Replay:      replayGuard,
		CallTimeout: cfg.GrantCallTimeout,
	})

	profileService := profile.NewService(assignmentSource{grants: grantsService}, usersRepo)
	authzMiddleware := authz.Middleware{Profiles: profileService, Logger: logger}

	usersService := users.NewService(usersRepo, profileService)

	passengerRepo := passengers.NewRepository(dbpool)
	passengerService := passengers.NewService(passengerRepo, auditLogger, logger)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Pool:             dbpool,
		AuthHandler:      authHandler,
		RegistryHandler:  registry.NewHandler(logger, registryService, authzMiddleware),
		GrantsHandler:    grants.NewHandler(logger, grantsService, authzMiddleware),
		ProfileHandler:   profile.NewHandler(logger, profileService),
		UsersHandler:     users.NewHandler(logger, usersService, authzMiddleware),
		PassengerHandler: passengers.NewHandler(logger, passengerService, authzMiddleware),
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
