package profile

// ProgramAssignment is the per-program slice of a profile: that program's own
// roles and permissions, never the global union.
type ProgramAssignment struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Profile is the derived, read-only authorization view for one user. Roles
// and Permissions are the unions of the per-program sets; they are recomputed
// on every build and never stored.
type Profile struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Roles       []string            `json:"roles"`
	Permissions []string            `json:"permissions"`
	Programs    []ProgramAssignment `json:"programs"`
}

// Identity is the catalog record for one user account.
type Identity struct {
	ID    int64
	Name  string
	Email string
}
