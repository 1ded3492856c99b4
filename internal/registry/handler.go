package registry

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voyagehq/voyage/internal/authz"
	"github.com/voyagehq/voyage/internal/platform/httpx"
)

// Handler serves the read-only catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuthenticated())
		r.Get("/roles", h.listRoles)
		r.Get("/permissions", h.listPermissions)
		r.Get("/programs", h.listPrograms)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.service.ListPrograms(r.Context())
	if err != nil {
		h.logger.Error("list programs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if programs == nil {
		programs = []Program{}
	}
	httpx.JSON(w, http.StatusOK, programs)
}
