package shared

// Passenger capability identifiers. The catalog is the source of truth; these
// constants exist so guard checks reference one spelling.
const (
	PermViewPassenger   = "view-passenger"
	PermCreatePassenger = "create-passenger"
	PermDeletePassenger = "delete-passenger"
)

// Administrative capability identifiers for managing grants themselves.
const (
	PermManageRoles = "manage-roles"
	PermManageUsers = "manage-users"
)

// PassengerScopes lists all passenger-related permissions.
func PassengerScopes() []string {
	return []string{
		PermViewPassenger,
		PermCreatePassenger,
		PermDeletePassenger,
	}
}
