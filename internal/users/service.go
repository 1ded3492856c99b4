package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, page shared.Pagination) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
}

// ProfileBuilder derives one user's authorization profile.
type ProfileBuilder interface {
	Build(ctx context.Context, userID int64) (profile.Profile, error)
}

// Service handles user directory logic.
type Service struct {
	repo     RepositoryPort
	profiles ProfileBuilder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, profiles ProfileBuilder) *Service {
	return &Service{repo: repo, profiles: profiles}
}

// ListDirectory returns the directory page with each user's global unions.
// Unions come from the profile builder so they are always the recomputed
// per-program union, never an independently stored copy.
func (s *Service) ListDirectory(ctx context.Context, page, perPage int) ([]DirectoryEntry, shared.Pagination, error) {
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("users: count: %w", err)
	}
	pagination := shared.NewPagination(page, perPage, total)
	accounts, err := s.repo.ListUsers(ctx, pagination)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("users: list: %w", err)
	}

	entries := make([]DirectoryEntry, 0, len(accounts))
	for _, account := range accounts {
		p, err := s.profiles.Build(ctx, account.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return nil, shared.Pagination{}, fmt.Errorf("users: profile for %d: %w", account.ID, err)
		}
		entries = append(entries, DirectoryEntry{
			ID:          account.ID,
			Name:        account.Name,
			Email:       account.Email,
			Roles:       p.Roles,
			Permissions: p.Permissions,
		})
	}
	return entries, pagination, nil
}
