package registry

// Role is a global catalog entry. Roles carry no permissions by themselves;
// their meaning is defined per program by role grants.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Permission is an atomic capability identifier in the global catalog.
type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Program is a tenant scope under which roles and permissions are granted
// independently.
type Program struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Catalog is a point-in-time snapshot of the closed role/permission/program
// enumeration. Grant mutations validate every referenced name against a
// Catalog before touching the store; unknown names are rejected, never
// stored.
type Catalog struct {
	Roles       []Role
	Permissions []Permission
	Programs    []Program

	roleByName map[string]int64
	permByName map[string]int64
	programIDs map[int64]string
}

func newCatalog(roles []Role, perms []Permission, programs []Program) *Catalog {
	c := &Catalog{
		Roles:       roles,
		Permissions: perms,
		Programs:    programs,
		roleByName:  make(map[string]int64, len(roles)),
		permByName:  make(map[string]int64, len(perms)),
		programIDs:  make(map[int64]string, len(programs)),
	}
	for _, r := range roles {
		c.roleByName[r.Name] = r.ID
	}
	for _, p := range perms {
		c.permByName[p.Name] = p.ID
	}
	for _, p := range programs {
		c.programIDs[p.ID] = p.Name
	}
	return c
}

// RoleID resolves a role name to its interned identifier.
func (c *Catalog) RoleID(name string) (int64, bool) {
	id, ok := c.roleByName[name]
	return id, ok
}

// PermissionID resolves a permission name to its interned identifier.
func (c *Catalog) PermissionID(name string) (int64, bool) {
	id, ok := c.permByName[name]
	return id, ok
}

// HasRoleID reports whether the role identifier exists.
func (c *Catalog) HasRoleID(id int64) bool {
	for _, r := range c.Roles {
		if r.ID == id {
			return true
		}
	}
	return false
}

// HasProgram reports whether the program identifier exists.
func (c *Catalog) HasProgram(id int64) bool {
	_, ok := c.programIDs[id]
	return ok
}

// ProgramName returns the display name for a program identifier.
func (c *Catalog) ProgramName(id int64) string {
	return c.programIDs[id]
}
