package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagehq/voyage/internal/auth"
	"github.com/voyagehq/voyage/internal/grants"
	"github.com/voyagehq/voyage/internal/observability"
	"github.com/voyagehq/voyage/internal/passengers"
	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/registry"
	"github.com/voyagehq/voyage/internal/shared"
	"github.com/voyagehq/voyage/internal/users"
	"github.com/voyagehq/voyage/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Pool           *pgxpool.Pool

	AuthHandler      *auth.Handler
	RegistryHandler  *registry.Handler
	GrantsHandler    *grants.Handler
	ProfileHandler   *profile.Handler
	UsersHandler     *users.Handler
	PassengerHandler *passengers.Handler
	JobHandler       *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Voyage defaults. The surface is
// JSON only; every route except /healthz and /metrics sits behind the
// session middleware.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.AuthHandler.MountRoutes(r)
	params.RegistryHandler.MountRoutes(r)
	params.GrantsHandler.MountRoutes(r)
	params.ProfileHandler.MountRoutes(r)
	params.UsersHandler.MountRoutes(r)
	params.PassengerHandler.MountRoutes(r)

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
