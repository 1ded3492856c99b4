package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/shared"
)

// manager holds create-passenger only in Atlantic Crossing, while the global
// union carries it. Resource gating must follow the per-program sets.
func managerProfile() profile.Profile {
	return profile.Profile{
		ID:          7,
		Name:        "Morgan",
		Email:       "morgan@voyage.local",
		Roles:       []string{"agent", "program-manager"},
		Permissions: []string{"create-passenger", "view-passenger"},
		Programs: []profile.ProgramAssignment{
			{ID: 10, Name: "Atlantic Crossing", Roles: []string{"program-manager"}, Permissions: []string{"view-passenger", "create-passenger"}},
			{ID: 20, Name: "Pacific Loop", Roles: []string{"agent"}, Permissions: []string{"view-passenger"}},
			{ID: 30, Name: "Northern Lights", Roles: []string{"agent"}, Permissions: []string{}},
		},
	}
}

func TestCanGloballyChecksUnion(t *testing.T) {
	p := managerProfile()

	assert.True(t, CanGlobally(p, shared.PermCreatePassenger))
	assert.True(t, CanGlobally(p, shared.PermViewPassenger))
	assert.False(t, CanGlobally(p, shared.PermDeletePassenger))
}

func TestCanInProgramIsScoped(t *testing.T) {
	p := managerProfile()

	assert.True(t, CanInProgram(p, 10, shared.PermCreatePassenger))
	// globally held but not granted in this program
	assert.False(t, CanInProgram(p, 20, shared.PermCreatePassenger))
	// member of the program with an empty permission set
	assert.False(t, CanInProgram(p, 30, shared.PermViewPassenger))
	// unknown program answers false, never an error
	assert.False(t, CanInProgram(p, 99, shared.PermViewPassenger))
}

func TestProgramsWhereFiltersByEffectivePermission(t *testing.T) {
	p := managerProfile()

	creatable := ProgramsWhere(p, shared.PermCreatePassenger)
	require.Len(t, creatable, 1)
	assert.Equal(t, int64(10), creatable[0].ID)

	viewable := ProgramsWhere(p, shared.PermViewPassenger)
	require.Len(t, viewable, 2)
	assert.Equal(t, int64(10), viewable[0].ID)
	assert.Equal(t, int64(20), viewable[1].ID)

	assert.Empty(t, ProgramsWhere(p, shared.PermDeletePassenger))
}

func TestProgramsWhereMembershipAloneGrantsNothing(t *testing.T) {
	p := profile.Profile{
		ID:          8,
		Permissions: []string{},
		Programs: []profile.ProgramAssignment{
			{ID: 10, Name: "Atlantic Crossing", Roles: []string{"agent"}, Permissions: []string{}},
		},
	}

	assert.Empty(t, ProgramsWhere(p, shared.PermViewPassenger))
	assert.False(t, CanInProgram(p, 10, shared.PermViewPassenger))
}

func TestEmptyProfileDeniesEverything(t *testing.T) {
	var p profile.Profile

	assert.False(t, CanGlobally(p, shared.PermViewPassenger))
	assert.False(t, CanInProgram(p, 10, shared.PermViewPassenger))
	assert.Empty(t, ProgramsWhere(p, shared.PermViewPassenger))
}
