package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/voyagehq/voyage/internal/platform/db"
)

// Service exposes the closed catalog of roles, permissions and programs. The
// catalog is administered externally; this service is read-only.
type Service struct {
	repo        RepositoryPort
	callTimeout time.Duration
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, callTimeout time.Duration) *Service {
	return &Service{repo: repo, callTimeout: callTimeout}
}

// ListRoles returns all roles ordered by id.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := db.WithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var err error
		roles, err = s.repo.ListRoles(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("registry: list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns all permissions ordered by id.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	var perms []Permission
	err := db.WithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var err error
		perms, err = s.repo.ListPermissions(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("registry: list permissions: %w", err)
	}
	return perms, nil
}

// ListPrograms returns all programs ordered by id.
func (s *Service) ListPrograms(ctx context.Context) ([]Program, error) {
	var programs []Program
	err := db.WithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var err error
		programs, err = s.repo.ListPrograms(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("registry: list programs: %w", err)
	}
	return programs, nil
}

// Catalog assembles a validation snapshot of the whole enumeration. Snapshots
// are built per mutation, never held across writes.
func (s *Service) Catalog(ctx context.Context) (*Catalog, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := s.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	programs, err := s.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}
	return newCatalog(roles, perms, programs), nil
}
