package grants

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/voyagehq/voyage/internal/platform/db"
	"github.com/voyagehq/voyage/internal/registry"
	"github.com/voyagehq/voyage/internal/shared"
)

// CatalogSource supplies validation snapshots of the closed catalog.
type CatalogSource interface {
	Catalog(ctx context.Context) (*registry.Catalog, error)
}

// UserSource answers whether a user exists before a bulk replace is accepted.
type UserSource interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Service is the grant store facade and the assignment mutator: it validates
// mutations against the catalog, serializes saves per scope key, and applies
// each mutation as one atomic replace.
type Service struct {
	repo        RepositoryPort
	catalogs    CatalogSource
	users       UserSource
	tracker     *SaveTracker
	audit       *shared.AuditLogger
	replay      *shared.ReplayGuard
	logger      *slog.Logger
	callTimeout time.Duration

	mu      sync.Mutex
	tickets map[string]uint64
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Audit       *shared.AuditLogger
	Replay      *shared.ReplayGuard
	CallTimeout time.Duration
}

// NewService constructs the grants service.
func NewService(repo RepositoryPort, catalogs CatalogSource, users UserSource, tracker *SaveTracker, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{
		repo:        repo,
		catalogs:    catalogs,
		users:       users,
		tracker:     tracker,
		audit:       cfg.Audit,
		replay:      cfg.Replay,
		logger:      logger,
		callTimeout: cfg.CallTimeout,
		tickets:     make(map[string]uint64),
	}
}

// GetRoleGrant returns the permission set for (role, program). A scope that
// exists in the catalog but holds no grant yields an empty set.
func (s *Service) GetRoleGrant(ctx context.Context, roleID, programID int64) ([]string, error) {
	if roleID <= 0 || programID <= 0 {
		return nil, fmt.Errorf("grants: %w: role and program must be selected", shared.ErrInvalidSelection)
	}
	catalog, err := s.catalogs.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if !catalog.HasRoleID(roleID) || !catalog.HasProgram(programID) {
		return nil, fmt.Errorf("grants: role %d in program %d: %w", roleID, programID, shared.ErrNotFound)
	}
	var perms []string
	err = db.WithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var err error
		perms, err = s.repo.GetRolePermissions(ctx, roleID, programID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("grants: get role grant: %w", err)
	}
	return perms, nil
}

// SetRoleGrant replaces the full permission set for (role, program). The
// desired set comes entirely from the caller; nothing is merged with prior
// state. Returns the store's confirmation message.
func (s *Service) SetRoleGrant(ctx context.Context, actorID, roleID, programID int64, permissions []string, mutationKey string) (string, error) {
	if roleID <= 0 || programID <= 0 {
		return "", fmt.Errorf("grants: %w: role and program must be selected", shared.ErrInvalidSelection)
	}
	catalog, err := s.catalogs.Catalog(ctx)
	if err != nil {
		return "", err
	}
	if !catalog.HasRoleID(roleID) {
		return "", fmt.Errorf("grants: %w: unknown role %d", shared.ErrValidationFailed, roleID)
	}
	if !catalog.HasProgram(programID) {
		return "", fmt.Errorf("grants: %w: unknown program %d", shared.ErrValidationFailed, programID)
	}
	permIDs, err := internPermissions(catalog, permissions)
	if err != nil {
		return "", err
	}

	key := shared.RoleGrantKey(roleID, programID)
	if err := s.tracker.Begin(key); err != nil {
		return "", fmt.Errorf("grants: role grant save: %w", err)
	}
	ticket := s.issueTicket(key)

	message := fmt.Sprintf("Permissions updated for role in program %q", catalog.ProgramName(programID))
	err = s.guardReplay(ctx, mutationKey, key, func() error {
		return db.WithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
			return s.repo.ReplaceRolePermissions(ctx, roleID, programID, permIDs, func() error {
				if !s.ticketCurrent(key, ticket) {
					return fmt.Errorf("grants: role grant: %w", shared.ErrSuperseded)
				}
				return nil
			})
		})
	})
	s.tracker.Finish(key, err, message)
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, actorID, "grants.role.replace", "role_grant", fmt.Sprintf("%d:%d", roleID, programID), map[string]any{
		"permissions": permissions,
	})
	return message, nil
}

// ListUserAssignments returns the per-program breakdown for one user, ordered
// by program id, omitting programs where the user holds nothing.
func (s *Service) ListUserAssignments(ctx context.Context, userID int64) ([]ProgramAssignment, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("grants: %w: user must be selected", shared.ErrInvalidSelection)
	}
	var assignments []ProgramAssignment
	err := db.WithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var err error
		assignments, err = s.repo.ListUserAssignments(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("grants: list user assignments: %w", err)
	}
	return assignments, nil
}

// SetUserAssignments atomically replaces the user's role and permission sets
// across every program in the batch. One unknown program, role or permission
// name anywhere aborts the whole batch with prior state untouched.
func (s *Service) SetUserAssignments(ctx context.Context, actorID, userID int64, changes []AssignmentChange, mutationKey string) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("grants: %w: user must be selected", shared.ErrInvalidSelection)
	}
	exists, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("grants: check user: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("grants: user %d: %w", userID, shared.ErrNotFound)
	}

	catalog, err := s.catalogs.Catalog(ctx)
	if err != nil {
		return "", err
	}
	batch, err := internAssignments(catalog, changes)
	if err != nil {
		return "", err
	}

	key := shared.UserAssignmentsKey(userID)
	if err := s.tracker.Begin(key); err != nil {
		return "", fmt.Errorf("grants: user assignments save: %w", err)
	}
	ticket := s.issueTicket(key)

	message := fmt.Sprintf("Assignments saved across %d program(s)", len(batch))
	err = s.guardReplay(ctx, mutationKey, key, func() error {
		return db.WithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
			return s.repo.ReplaceUserAssignments(ctx, userID, batch, func() error {
				if !s.ticketCurrent(key, ticket) {
					return fmt.Errorf("grants: user assignments: %w", shared.ErrSuperseded)
				}
				return nil
			})
		})
	})
	s.tracker.Finish(key, err, message)
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, actorID, "grants.user.replace", "user_assignments", fmt.Sprintf("%d", userID), map[string]any{
		"programs": len(batch),
	})
	return message, nil
}

// SaveStatus exposes the save state machine for one scope key.
func (s *Service) SaveStatus(key string) SaveStatus {
	return s.tracker.Status(key)
}

func (s *Service) issueTicket(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[key]++
	return s.tickets[key]
}

func (s *Service) ticketCurrent(key string, ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets[key] == ticket
}

// guardReplay registers the mutation key before applying and releases it if
// the apply fails, so a deliberate retry after a definite failure stays
// possible while an uncertain duplicate is rejected.
func (s *Service) guardReplay(ctx context.Context, mutationKey, scope string, apply func() error) error {
	if s.replay == nil || mutationKey == "" {
		return apply()
	}
	if err := s.replay.CheckAndInsert(ctx, mutationKey, scope); err != nil {
		return fmt.Errorf("grants: %w", err)
	}
	if err := apply(); err != nil {
		if delErr := s.replay.Delete(ctx, mutationKey); delErr != nil && s.logger != nil {
			s.logger.Warn("release mutation key", slog.Any("error", delErr))
		}
		return err
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit grant mutation", slog.Any("error", err))
	}
}

func internPermissions(catalog *registry.Catalog, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	seen := make(map[int64]struct{}, len(names))
	for _, name := range names {
		id, ok := catalog.PermissionID(name)
		if !ok {
			return nil, fmt.Errorf("grants: %w: unknown permission %q", shared.ErrValidationFailed, name)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func internRoles(catalog *registry.Catalog, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	seen := make(map[int64]struct{}, len(names))
	for _, name := range names {
		id, ok := catalog.RoleID(name)
		if !ok {
			return nil, fmt.Errorf("grants: %w: unknown role %q", shared.ErrValidationFailed, name)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func internAssignments(catalog *registry.Catalog, changes []AssignmentChange) ([]ResolvedAssignment, error) {
	batch := make([]ResolvedAssignment, 0, len(changes))
	seenPrograms := make(map[int64]struct{}, len(changes))
	for _, change := range changes {
		if !catalog.HasProgram(change.ProgramID) {
			return nil, fmt.Errorf("grants: %w: unknown program %d", shared.ErrValidationFailed, change.ProgramID)
		}
		if _, dup := seenPrograms[change.ProgramID]; dup {
			return nil, fmt.Errorf("grants: %w: duplicate program %d in batch", shared.ErrValidationFailed, change.ProgramID)
		}
		seenPrograms[change.ProgramID] = struct{}{}
		roleIDs, err := internRoles(catalog, change.Roles)
		if err != nil {
			return nil, err
		}
		permIDs, err := internPermissions(catalog, change.Permissions)
		if err != nil {
			return nil, err
		}
		batch = append(batch, ResolvedAssignment{
			ProgramID:     change.ProgramID,
			RoleIDs:       roleIDs,
			PermissionIDs: permIDs,
		})
	}
	return batch, nil
}
