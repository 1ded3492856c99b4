package grants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagehq/voyage/internal/registry"
	"github.com/voyagehq/voyage/internal/shared"
)

// ============================================================================
// FIXTURES
// ============================================================================

var (
	permNames = map[int64]string{
		1: "view-passenger",
		2: "create-passenger",
		3: "delete-passenger",
		4: "manage-roles",
	}
	roleNames = map[int64]string{
		1: "admin",
		2: "program-manager",
	}
	programNames = map[int64]string{
		10: "Atlantic Crossing",
		20: "Pacific Loop",
	}
)

type stubCatalogSource struct {
	err error
}

func (s stubCatalogSource) Catalog(ctx context.Context) (*registry.Catalog, error) {
	if s.err != nil {
		return nil, s.err
	}
	repo := stubRegistryRepo{}
	return registry.NewService(repo, 0).Catalog(ctx)
}

type stubRegistryRepo struct{}

func (stubRegistryRepo) ListRoles(ctx context.Context) ([]registry.Role, error) {
	return []registry.Role{{ID: 1, Name: "admin"}, {ID: 2, Name: "program-manager"}}, nil
}

func (stubRegistryRepo) ListPermissions(ctx context.Context) ([]registry.Permission, error) {
	return []registry.Permission{
		{ID: 1, Name: "view-passenger"},
		{ID: 2, Name: "create-passenger"},
		{ID: 3, Name: "delete-passenger"},
		{ID: 4, Name: "manage-roles"},
	}, nil
}

func (stubRegistryRepo) ListPrograms(ctx context.Context) ([]registry.Program, error) {
	return []registry.Program{{ID: 10, Name: "Atlantic Crossing"}, {ID: 20, Name: "Pacific Loop"}}, nil
}

type stubUserSource struct {
	known map[int64]bool
	err   error
}

func (s stubUserSource) UserExists(ctx context.Context, userID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.known[userID], nil
}

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockGrantRepo struct {
	rolePerms map[string][]int64
	userState map[int64][]ResolvedAssignment

	replaceRoleErr error
	replaceUserErr error
	listErr        error
}

func newMockGrantRepo() *mockGrantRepo {
	return &mockGrantRepo{
		rolePerms: make(map[string][]int64),
		userState: make(map[int64][]ResolvedAssignment),
	}
}

func roleScope(roleID, programID int64) string {
	return fmt.Sprintf("%d:%d", roleID, programID)
}

func (m *mockGrantRepo) GetRolePermissions(ctx context.Context, roleID, programID int64) ([]string, error) {
	ids := append([]int64{}, m.rolePerms[roleScope(roleID, programID)]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	names := []string{}
	for _, id := range ids {
		names = append(names, permNames[id])
	}
	return names, nil
}

func (m *mockGrantRepo) ReplaceRolePermissions(ctx context.Context, roleID, programID int64, permissionIDs []int64, precommit func() error) error {
	if m.replaceRoleErr != nil {
		return m.replaceRoleErr
	}
	if err := precommit(); err != nil {
		return err
	}
	m.rolePerms[roleScope(roleID, programID)] = append([]int64{}, permissionIDs...)
	return nil
}

func (m *mockGrantRepo) ListUserAssignments(ctx context.Context, userID int64) ([]ProgramAssignment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	state := append([]ResolvedAssignment{}, m.userState[userID]...)
	sort.Slice(state, func(i, j int) bool { return state[i].ProgramID < state[j].ProgramID })
	out := []ProgramAssignment{}
	for _, entry := range state {
		if len(entry.RoleIDs) == 0 && len(entry.PermissionIDs) == 0 {
			continue
		}
		assignment := ProgramAssignment{
			ProgramID:   entry.ProgramID,
			ProgramName: programNames[entry.ProgramID],
			Roles:       []string{},
			Permissions: []string{},
		}
		permSet := make(map[int64]struct{})
		for _, id := range entry.RoleIDs {
			assignment.Roles = append(assignment.Roles, roleNames[id])
			for _, permID := range m.rolePerms[roleScope(id, entry.ProgramID)] {
				permSet[permID] = struct{}{}
			}
		}
		for _, id := range entry.PermissionIDs {
			permSet[id] = struct{}{}
		}
		permIDs := make([]int64, 0, len(permSet))
		for id := range permSet {
			permIDs = append(permIDs, id)
		}
		sort.Slice(permIDs, func(i, j int) bool { return permIDs[i] < permIDs[j] })
		for _, id := range permIDs {
			assignment.Permissions = append(assignment.Permissions, permNames[id])
		}
		out = append(out, assignment)
	}
	return out, nil
}

func (m *mockGrantRepo) ReplaceUserAssignments(ctx context.Context, userID int64, batch []ResolvedAssignment, precommit func() error) error {
	if m.replaceUserErr != nil {
		return m.replaceUserErr
	}
	if err := precommit(); err != nil {
		return err
	}
	m.userState[userID] = append([]ResolvedAssignment{}, batch...)
	return nil
}

func newTestService(repo RepositoryPort) *Service {
	tracker := NewSaveTracker(20 * time.Millisecond)
	users := stubUserSource{known: map[int64]bool{7: true}}
	return NewService(repo, stubCatalogSource{}, users, tracker, slog.Default(), ServiceConfig{})
}

// ============================================================================
// ROLE GRANTS
// ============================================================================

func TestSetRoleGrantReplacesFullSet(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	msg, err := svc.SetRoleGrant(ctx, 1, 2, 10, []string{"view-passenger", "create-passenger"}, "")
	require.NoError(t, err)
	assert.Contains(t, msg, "Atlantic Crossing")

	perms, err := svc.GetRoleGrant(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"view-passenger", "create-passenger"}, perms)

	// second save carries the complete desired set; omission revokes
	_, err = svc.SetRoleGrant(ctx, 1, 2, 10, []string{"view-passenger"}, "")
	require.NoError(t, err)

	perms, err = svc.GetRoleGrant(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"view-passenger"}, perms)
}

func TestSetRoleGrantIsIdempotent(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	desired := []string{"view-passenger", "delete-passenger"}
	_, err := svc.SetRoleGrant(ctx, 1, 1, 10, desired, "")
	require.NoError(t, err)
	_, err = svc.SetRoleGrant(ctx, 1, 1, 10, desired, "")
	require.NoError(t, err)

	perms, err := svc.GetRoleGrant(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"view-passenger", "delete-passenger"}, perms)
}

func TestSetRoleGrantScopesArePerProgram(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.SetRoleGrant(ctx, 1, 2, 10, []string{"delete-passenger"}, "")
	require.NoError(t, err)

	other, err := svc.GetRoleGrant(ctx, 2, 20)
	require.NoError(t, err)
	assert.Empty(t, other, "grant in one program must not leak into another")

	same, err := svc.GetRoleGrant(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete-passenger"}, same)
}

func TestSetRoleGrantUnknownPermissionRejected(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.SetRoleGrant(ctx, 1, 2, 10, []string{"view-passenger", "launch-rocket"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidationFailed)

	perms, err := svc.GetRoleGrant(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, perms, "store must stay untouched after a rejected mutation")
}

func TestSetRoleGrantUnknownScopeRejected(t *testing.T) {
	svc := newTestService(newMockGrantRepo())
	ctx := context.Background()

	_, err := svc.SetRoleGrant(ctx, 1, 99, 10, []string{"view-passenger"}, "")
	assert.ErrorIs(t, err, shared.ErrValidationFailed)

	_, err = svc.SetRoleGrant(ctx, 1, 1, 99, []string{"view-passenger"}, "")
	assert.ErrorIs(t, err, shared.ErrValidationFailed)
}

func TestGetRoleGrantSelectionAndScope(t *testing.T) {
	svc := newTestService(newMockGrantRepo())
	ctx := context.Background()

	_, err := svc.GetRoleGrant(ctx, 0, 10)
	assert.ErrorIs(t, err, shared.ErrInvalidSelection)

	_, err = svc.GetRoleGrant(ctx, 1, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidSelection)

	_, err = svc.GetRoleGrant(ctx, 99, 10)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	perms, err := svc.GetRoleGrant(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{}, perms, "known scope without grants yields the empty set")
}

func TestSetRoleGrantDeduplicatesInput(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.SetRoleGrant(ctx, 1, 1, 10, []string{"view-passenger", "view-passenger"}, "")
	require.NoError(t, err)

	perms, err := svc.GetRoleGrant(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"view-passenger"}, perms)
}

// ============================================================================
// USER ASSIGNMENTS
// ============================================================================

func TestSetUserAssignmentsReplacesWholeBatch(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	changes := []AssignmentChange{
		{ProgramID: 10, Roles: []string{"admin"}, Permissions: []string{"view-passenger"}},
		{ProgramID: 20, Roles: []string{"program-manager"}, Permissions: []string{"create-passenger", "view-passenger"}},
	}
	msg, err := svc.SetUserAssignments(ctx, 1, 7, changes, "")
	require.NoError(t, err)
	assert.Contains(t, msg, "2 program(s)")

	got, err := svc.ListUserAssignments(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].ProgramID)
	assert.Equal(t, []string{"admin"}, got[0].Roles)
	assert.Equal(t, int64(20), got[1].ProgramID)
	assert.ElementsMatch(t, []string{"create-passenger", "view-passenger"}, got[1].Permissions)
}

func TestSetUserAssignmentsEmptySetsRevoke(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.SetUserAssignments(ctx, 1, 7, []AssignmentChange{
		{ProgramID: 10, Roles: []string{"admin"}, Permissions: []string{"view-passenger"}},
	}, "")
	require.NoError(t, err)

	// replacing with empty sets clears the program entirely
	_, err = svc.SetUserAssignments(ctx, 1, 7, []AssignmentChange{
		{ProgramID: 10},
	}, "")
	require.NoError(t, err)

	got, err := svc.ListUserAssignments(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSetUserAssignmentsUnknownNameAbortsBatch(t *testing.T) {
	repo := newMockGrantRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.SetUserAssignments(ctx, 1, 7, []AssignmentChange{
		{ProgramID: 10, Roles: []string{"admin"}},
	}, "")
	require.NoError(t, err)

	_, err = svc.SetUserAssignments(ctx, 1, 7, []AssignmentChange{
		{ProgramID: 10, Roles: []string{"program-manager"}},
		{ProgramID: 20, Roles: []string{"captain"}},
	}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidationFailed)

	got, err := svc.ListUserAssignments(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"admin"}, got[0].Roles, "aborted batch must leave prior state untouched")
}

func TestSetUserAssignmentsDuplicateProgramRejected(t *testing.T) {
	svc := newTestService(newMockGrantRepo())
	ctx := context.Background()

	_, err := svc.SetUserAssignments(ctx, 1, 7, []AssignmentChange{
		{ProgramID: 10, Roles: []string{"admin"}},
		{ProgramID: 10, Roles: []string{"program-manager"}},
	}, "")
	assert.ErrorIs(t, err, shared.ErrValidationFailed)
}

func TestSetUserAssignmentsUnknownUser(t *testing.T) {
	svc := newTestService(newMockGrantRepo())
	ctx := context.Background()

	_, err := svc.SetUserAssignments(ctx, 1, 404, []AssignmentChange{
		{ProgramID: 10, Roles: []string{"admin"}},
	}, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// SAVE STATE MACHINE
// ============================================================================

func TestSaveRejectedWhileSaving(t *testing.T) {
	repo := newMockGrantRepo()
	tracker := NewSaveTracker(time.Minute)
	svc := NewService(repo, stubCatalogSource{}, stubUserSource{known: map[int64]bool{7: true}}, tracker, slog.Default(), ServiceConfig{})
	ctx := context.Background()

	key := shared.RoleGrantKey(1, 10)
	require.NoError(t, tracker.Begin(key))

	_, err := svc.SetRoleGrant(ctx, 1, 1, 10, []string{"view-passenger"}, "")
	assert.ErrorIs(t, err, shared.ErrSaveInProgress)

	tracker.Finish(key, nil, "done")
}

func TestFailedSaveSurfacesAndAllowsRetry(t *testing.T) {
	repo := newMockGrantRepo()
	repo.replaceRoleErr = errors.New("connection reset")
	tracker := NewSaveTracker(time.Minute)
	svc := NewService(repo, stubCatalogSource{}, stubUserSource{known: map[int64]bool{7: true}}, tracker, slog.Default(), ServiceConfig{})
	ctx := context.Background()

	_, err := svc.SetRoleGrant(ctx, 1, 1, 10, []string{"view-passenger"}, "")
	require.Error(t, err)

	status := svc.SaveStatus(shared.RoleGrantKey(1, 10))
	assert.Equal(t, StateFailed, status.State)

	// a definite failure leaves the key ready for an immediate retry
	repo.replaceRoleErr = nil
	_, err = svc.SetRoleGrant(ctx, 1, 1, 10, []string{"view-passenger"}, "")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, svc.SaveStatus(shared.RoleGrantKey(1, 10)).State)
}

func TestSavesOnDifferentScopesDoNotSerialize(t *testing.T) {
	repo := newMockGrantRepo()
	tracker := NewSaveTracker(time.Minute)
	svc := NewService(repo, stubCatalogSource{}, stubUserSource{known: map[int64]bool{7: true}}, tracker, slog.Default(), ServiceConfig{})
	ctx := context.Background()

	require.NoError(t, tracker.Begin(shared.RoleGrantKey(1, 10)))

	// a held lock on (role 1, program 10) must not block (role 1, program 20)
	_, err := svc.SetRoleGrant(ctx, 1, 1, 20, []string{"view-passenger"}, "")
	require.NoError(t, err)
}
