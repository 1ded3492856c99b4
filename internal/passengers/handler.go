package passengers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/voyagehq/voyage/internal/authz"
	"github.com/voyagehq/voyage/internal/platform/httpx"
	"github.com/voyagehq/voyage/internal/shared"
)

// Handler serves passenger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz, validator: validator.New()}
}

// MountRoutes registers passenger routes. Authentication is the only gate at
// the router level; the per-program permission checks live in the service so
// they always run against the passenger's own program.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuthenticated())
		r.Get("/passengers", h.listPassengers)
		r.Post("/passengers", h.createPassenger)
		r.Delete("/passengers/{passengerID}", h.deletePassenger)
	})
}

func (h *Handler) listPassengers(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ProfileFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	passengers, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("list passengers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, passengers)
}

type createPayload struct {
	Name      string `json:"name" validate:"required"`
	ProgramID int64  `json:"program_id" validate:"required,gt=0"`
}

func (h *Handler) createPassenger(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ProfileFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidationFailed))
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		detail := err.Error()
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			detail = fieldErrs[0].Error()
		}
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidationFailed, detail))
		return
	}
	p, err := h.service.Create(r.Context(), actor, payload.Name, payload.ProgramID)
	if err != nil {
		h.logger.Error("create passenger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) deletePassenger(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ProfileFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "passengerID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: passenger id must be a positive integer", shared.ErrInvalidSelection))
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.logger.Error("delete passenger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Confirmation{Message: "passenger removed"})
}
