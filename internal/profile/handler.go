package profile

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voyagehq/voyage/internal/platform/httpx"
	"github.com/voyagehq/voyage/internal/shared"
)

// Handler serves the authenticated actor's own profile.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/user", h.currentUser)
}

// currentUser rebuilds the actor's profile from stored per-program state on
// every call. Clients treat the response as valid-as-of-fetch-time and
// re-fetch after any mutation they performed.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || strings.TrimSpace(sess.User()) == "" {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
	if err != nil {
		h.logger.Error("parse session user id", slog.String("value", sess.User()))
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	p, err := h.service.Build(r.Context(), userID)
	if err != nil {
		h.logger.Error("build profile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
