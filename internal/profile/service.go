package profile

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// AssignmentSource reads the per-program grant state a profile derives from.
// The grant store is adapted to this interface at wiring time.
type AssignmentSource interface {
	ListUserAssignments(ctx context.Context, userID int64) ([]ProgramAssignment, error)
}

// IdentitySource resolves user account records.
type IdentitySource interface {
	LookupIdentity(ctx context.Context, userID int64) (Identity, error)
}

// Service derives authorization profiles. The global role and permission
// unions are a pure function of the stored per-program sets, recomputed on
// every build; there is no cache to go stale across a mutation. Concurrent
// builds of the same user collapse into one store read.
type Service struct {
	assignments AssignmentSource
	identities  IdentitySource
	group       singleflight.Group
}

// NewService builds Service instance.
func NewService(assignments AssignmentSource, identities IdentitySource) *Service {
	return &Service{assignments: assignments, identities: identities}
}

// Build assembles the profile for one user.
func (s *Service) Build(ctx context.Context, userID int64) (Profile, error) {
	// The shared build outlives any one caller, so it must not inherit the
	// first caller's cancellation.
	buildCtx := context.WithoutCancel(ctx)
	result := s.group.DoChan(strconv.FormatInt(userID, 10), func() (any, error) {
		return s.build(buildCtx, userID)
	})
	select {
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Profile{}, res.Err
		}
		return res.Val.(Profile), nil
	}
}

func (s *Service) build(ctx context.Context, userID int64) (Profile, error) {
	identity, err := s.identities.LookupIdentity(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: lookup user %d: %w", userID, err)
	}
	assignments, err := s.assignments.ListUserAssignments(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: assignments for user %d: %w", userID, err)
	}

	roleUnion := make(map[string]struct{})
	permUnion := make(map[string]struct{})
	programs := make([]ProgramAssignment, 0, len(assignments))
	for _, a := range assignments {
		for _, role := range a.Roles {
			roleUnion[role] = struct{}{}
		}
		for _, perm := range a.Permissions {
			permUnion[perm] = struct{}{}
		}
		programs = append(programs, ProgramAssignment{
			ID:          a.ID,
			Name:        a.Name,
			Roles:       append([]string{}, a.Roles...),
			Permissions: append([]string{}, a.Permissions...),
		})
	}

	return Profile{
		ID:          identity.ID,
		Name:        identity.Name,
		Email:       identity.Email,
		Roles:       sortedKeys(roleUnion),
		Permissions: sortedKeys(permUnion),
		Programs:    programs,
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
