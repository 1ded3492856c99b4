package grants

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagehq/voyage/internal/authz"
	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/shared"
)

// profileSource adapts the grant service to the profile builder's read
// interface, mirroring the wiring in cmd/voyage.
type profileSource struct {
	grants *Service
}

func (s profileSource) ListUserAssignments(ctx context.Context, userID int64) ([]profile.ProgramAssignment, error) {
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

type staticIdentities struct{}

func (staticIdentities) LookupIdentity(ctx context.Context, userID int64) (profile.Identity, error) {
	return profile.Identity{ID: userID, Name: "Crew Member", Email: "crew@voyage.local"}, nil
}

// A user holding a role must carry that role's grants in their effective
// sets, scoped to the programs where the grant exists, without any
// user_permissions rows of their own.
func TestRoleGrantsFlowIntoProfiles(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	profiles := profile.NewService(profileSource{grants: svc}, staticIdentities{})
	ctx := context.Background()

	// program-manager carries view-passenger in Atlantic Crossing only
	_, err := svc.SetRoleGrant(ctx, 1, 2, 10, []string{"view-passenger"}, "")
	require.NoError(t, err)

	// user 7 holds the role in both programs, with no direct grants anywhere
	_, err = svc.SetUserAssignments(ctx, 1, 7, []AssignmentChange{
		{ProgramID: 10, Roles: []string{"program-manager"}},
		{ProgramID: 20, Roles: []string{"program-manager"}},
	}, "")
	require.NoError(t, err)

	p, err := profiles.Build(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"view-passenger"}, p.Permissions)

	viewable := authz.ProgramsWhere(p, shared.PermViewPassenger)
	require.Len(t, viewable, 1)
	assert.Equal(t, int64(10), viewable[0].ID)
	assert.True(t, authz.CanInProgram(p, 10, shared.PermViewPassenger))
	assert.False(t, authz.CanInProgram(p, 20, shared.PermViewPassenger))
}

// Editing a role's grant shifts every holder's next profile build without
// touching any per-user rows.
func TestRoleGrantEditWidensHolders(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	profiles := profile.NewService(profileSource{grants: svc}, staticIdentities{})
	ctx := context.Background()

	_, err := svc.SetUserAssignments(ctx, 1, 7, []AssignmentChange{
		{ProgramID: 20, Roles: []string{"program-manager"}},
	}, "")
	require.NoError(t, err)

	p, err := profiles.Build(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, p.Permissions)

	_, err = svc.SetRoleGrant(ctx, 1, 2, 20, []string{"view-passenger", "delete-passenger"}, "")
	require.NoError(t, err)

	p, err = profiles.Build(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete-passenger", "view-passenger"}, p.Permissions)
	assert.True(t, authz.CanInProgram(p, 20, shared.PermDeletePassenger))

	// narrowing back revokes on the next build
	_, err = svc.SetRoleGrant(ctx, 1, 2, 20, []string{"view-passenger"}, "")
	require.NoError(t, err)

	p, err = profiles.Build(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"view-passenger"}, p.Permissions)
	assert.False(t, authz.CanInProgram(p, 20, shared.PermDeletePassenger))
}
