package users

import "time"

// User represents a user account for management.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DirectoryEntry is one row of the admin directory: the account plus the
// global unions of its per-program roles and permissions.
type DirectoryEntry struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
