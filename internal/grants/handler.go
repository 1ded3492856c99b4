package grants

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

// MutationKeyHeader optionally carries a client-chosen key so an uncertain
// re-send of a bulk replace is detected instead of applied twice.
const MutationKeyHeader = "X-Mutation-Key"

// Handler serves the role-grant and user-assignment endpoints.
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

// MountRoutes registers grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuthenticated())
		r.Use(h.authz.RequireGlobal(shared.PermManageRoles))
		r.Get("/roles/{roleID}/permissions", h.getRoleGrant)
		r.Post("/roles/{roleID}/permissions", h.setRoleGrant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuthenticated())
		r.Use(h.authz.RequireGlobal(shared.PermManageUsers))
		r.Get("/users/{userID}/assignments", h.getUserAssignments)
		r.Post("/users/{userID}/assignments", h.setUserAssignments)
	})
}

func (h *Handler) getRoleGrant(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	programID, err := strconv.ParseInt(r.URL.Query().Get("program_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: program_id query parameter required", shared.ErrInvalidSelection))
		return
	}
	perms, err := h.service.GetRoleGrant(r.Context(), roleID, programID)
	if err != nil {
		h.logger.Error("get role grant", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type roleGrantPayload struct {
	Permissions []string `json:"permissions"`
	ProgramID   int64    `json:"program_id" validate:"required,gt=0"`
}

func (h *Handler) setRoleGrant(w http.ResponseWriter, r *http.Request) {
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload roleGrantPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidationFailed))
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidationFailed, firstFieldError(err)))
		return
	}
	message, err := h.service.SetRoleGrant(r.Context(), actorID(r), roleID, payload.ProgramID, payload.Permissions, r.Header.Get(MutationKeyHeader))
	if err != nil {
		h.logger.Error("set role grant", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Confirmation{Message: message})
}

type assignmentsResponse struct {
	Programs []assignmentEntryResponse `json:"programs"`
}

type assignmentEntryResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) getUserAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	assignments, err := h.service.ListUserAssignments(r.Context(), userID)
	if err != nil {
		h.logger.Error("get user assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := assignmentsResponse{Programs: make([]assignmentEntryResponse, 0, len(assignments))}
	for _, a := range assignments {
		resp.Programs = append(resp.Programs, assignmentEntryResponse{
			ID:          a.ProgramID,
			Name:        a.ProgramName,
			Roles:       a.Roles,
			Permissions: a.Permissions,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type assignmentEntryPayload struct {
	ProgramID   int64    `json:"program_id" validate:"required,gt=0"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type assignmentsPayload struct {
	Assignments []assignmentEntryPayload `json:"assignments" validate:"required,dive"`
}

func (h *Handler) setUserAssignments(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload assignmentsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", shared.ErrValidationFailed))
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidationFailed, firstFieldError(err)))
		return
	}
	changes := make([]AssignmentChange, 0, len(payload.Assignments))
	for _, entry := range payload.Assignments {
		changes = append(changes, AssignmentChange{
			ProgramID:   entry.ProgramID,
			Roles:       entry.Roles,
			Permissions: entry.Permissions,
		})
	}
	message, err := h.service.SetUserAssignments(r.Context(), actorID(r), userID, changes, r.Header.Get(MutationKeyHeader))
	if err != nil {
		h.logger.Error("set user assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Confirmation{Message: message})
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", shared.ErrInvalidSelection, param)
	}
	return id, nil
}

func actorID(r *http.Request) int64 {
	if p, ok := authz.ProfileFromContext(r.Context()); ok {
		return p.ID
	}
	return 0
}

func firstFieldError(err error) string {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		return fieldErrs[0].Error()
	}
	return err.Error()
}
