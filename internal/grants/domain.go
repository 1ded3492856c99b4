package grants

// RoleGrant is the set of permission names a role carries within one program.
// Membership only; no ordering is implied.
type RoleGrant struct {
	RoleID      int64
	ProgramID   int64
	Permissions []string
}

// ProgramAssignment is one user's standing within one program: the role names
// held there and the permission names effective there. The effective set is
// the union of the grants carried by those roles and the user's direct
// grants; only the direct half is stored per user, so editing a role's
// grants shifts every holder's effective set without touching their rows.
type ProgramAssignment struct {
	ProgramID   int64
	ProgramName string
	Roles       []string
	Permissions []string
}

// AssignmentChange is the desired state for one program in a bulk replace.
// A program whose entry carries empty sets is still part of the batch: that
// is how a prior assignment gets cleared. Omitting a name revokes it.
type AssignmentChange struct {
	ProgramID   int64
	Roles       []string
	Permissions []string
}
