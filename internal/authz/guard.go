// Package authz holds the pure authorization guard and its HTTP middleware.
//
// Every resource-level decision is made at program granularity. The global
// permission union is a superset of each program's set and would wrongly
// authorize cross-program actions, so it is only consulted for coarse
// routing, never for gating a resource.
package authz

import (
	"github.com/voyagehq/voyage/internal/profile"
)

// CanGlobally reports whether the permission appears anywhere in the
// profile's union. Coarse routing only.
func CanGlobally(p profile.Profile, permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// CanInProgram reports whether the permission is effective for the actor
// within the given program. Unknown programs answer false.
func CanInProgram(p profile.Profile, programID int64, permission string) bool {
	for _, assignment := range p.Programs {
		if assignment.ID != programID {
			continue
		}
		for _, perm := range assignment.Permissions {
			if perm == permission {
				return true
			}
		}
		return false
	}
	return false
}

// ProgramsWhere filters the profile's programs down to those where the
// permission is effective. Used to restrict "create in program X" choices to
// programs where the actor actually holds the permission, not merely
// programs they belong to.
func ProgramsWhere(p profile.Profile, permission string) []profile.ProgramAssignment {
	var programs []profile.ProgramAssignment
	for _, assignment := range p.Programs {
		for _, perm := range assignment.Permissions {
			if perm == permission {
				programs = append(programs, assignment)
				break
			}
		}
	}
	return programs
}
