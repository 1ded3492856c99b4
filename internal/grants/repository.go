package grants

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagehq/voyage/internal/platform/db"
	"github.com/voyagehq/voyage/internal/shared"
)

// ResolvedAssignment carries one program's desired state with catalog names
// already interned to identifiers.
type ResolvedAssignment struct {
	ProgramID     int64
	RoleIDs       []int64
	PermissionIDs []int64
}

// RepositoryPort defines grant persistence. Replace operations run inside a
// single transaction holding an advisory lock on the scope key; precommit is
// invoked after the lock is held and immediately before commit, and a
// non-nil return aborts the transaction.
type RepositoryPort interface {
	GetRolePermissions(ctx context.Context, roleID, programID int64) ([]string, error)
	ReplaceRolePermissions(ctx context.Context, roleID, programID int64, permissionIDs []int64, precommit func() error) error
	ListUserAssignments(ctx context.Context, userID int64) ([]ProgramAssignment, error)
	ReplaceUserAssignments(ctx context.Context, userID int64, batch []ResolvedAssignment, precommit func() error) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRolePermissions returns the permission names granted to a role within a
// program. A scope with no explicit grant yields an empty set, not an error.
func (r *Repository) GetRolePermissions(ctx context.Context, roleID, programID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pm.name
		FROM role_permissions rp
		JOIN permissions pm ON pm.id = rp.permission_id
		WHERE rp.role_id = $1 AND rp.program_id = $2
		ORDER BY pm.id`, roleID, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// ReplaceRolePermissions swaps the full permission set for (role, program).
// Same-key writers serialize on the advisory lock; writers to other scope
// keys proceed unblocked.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID, programID int64, permissionIDs []int64, precommit func() error) error {
	lockID := shared.ScopeLockID(shared.RoleGrantKey(roleID, programID))
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID); err != nil {
			return fmt.Errorf("grants: acquire scope lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND program_id = $2`, roleID, programID); err != nil {
			return fmt.Errorf("grants: clear role grant: %w", err)
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, program_id) VALUES ($1, $2, $3)`, roleID, permID, programID); err != nil {
				return fmt.Errorf("grants: insert role grant: %w", err)
			}
		}
		if precommit != nil {
			if err := precommit(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListUserAssignments returns one entry per program the user belongs to,
// ordered by program id. A program's permission set is the union of the
// grants carried by the user's roles there and the user's direct grants
// there; programs where the user holds nothing are omitted. All reads run
// inside one RepeatableRead transaction so a concurrent replace can make
// the result stale but never a mixture of two states.
func (r *Repository) ListUserAssignments(ctx context.Context, userID int64) ([]ProgramAssignment, error) {
	byProgram := make(map[int64]*ProgramAssignment)
	permSets := make(map[int64]map[string]struct{})

	addPerm := func(programID int64, programName, permName string) {
		ensureAssignment(byProgram, programID, programName)
		set, ok := permSets[programID]
		if !ok {
			set = make(map[string]struct{})
			permSets[programID] = set
		}
		set[permName] = struct{}{}
	}

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		collect := func(query string, visit func(programID int64, programName, value string)) error {
			rows, err := tx.Query(ctx, query, userID)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var programID int64
				var programName, value string
				if err := rows.Scan(&programID, &programName, &value); err != nil {
					return err
				}
				visit(programID, programName, value)
			}
			return rows.Err()
		}

		if err := collect(`
			SELECT p.id, p.name, ro.name
			FROM user_roles ur
			JOIN programs p ON p.id = ur.program_id
			JOIN roles ro ON ro.id = ur.role_id
			WHERE ur.user_id = $1
			ORDER BY p.id, ro.id`,
			func(programID int64, programName, roleName string) {
				entry := ensureAssignment(byProgram, programID, programName)
				entry.Roles = append(entry.Roles, roleName)
			}); err != nil {
			return fmt.Errorf("grants: user roles: %w", err)
		}

		if err := collect(`
			SELECT p.id, p.name, pm.name
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id AND rp.program_id = ur.program_id
			JOIN programs p ON p.id = ur.program_id
			JOIN permissions pm ON pm.id = rp.permission_id
			WHERE ur.user_id = $1`, addPerm); err != nil {
			return fmt.Errorf("grants: role-derived permissions: %w", err)
		}

		if err := collect(`
			SELECT p.id, p.name, pm.name
			FROM user_permissions up
			JOIN programs p ON p.id = up.program_id
			JOIN permissions pm ON pm.id = up.permission_id
			WHERE up.user_id = $1`, addPerm); err != nil {
			return fmt.Errorf("grants: direct permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	assignments := make([]ProgramAssignment, 0, len(byProgram))
	for programID, entry := range byProgram {
		if set, ok := permSets[programID]; ok {
			names := make([]string, 0, len(set))
			for name := range set {
				names = append(names, name)
			}
			sort.Strings(names)
			entry.Permissions = names
		}
		assignments = append(assignments, *entry)
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].ProgramID < assignments[j].ProgramID
	})
	return assignments, nil
}

// ReplaceUserAssignments commits the whole batch in one transaction scoped to
// the user: either every program's sets land or none do.
func (r *Repository) ReplaceUserAssignments(ctx context.Context, userID int64, batch []ResolvedAssignment, precommit func() error) error {
	lockID := shared.ScopeLockID(shared.UserAssignmentsKey(userID))
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID); err != nil {
			return fmt.Errorf("grants: acquire scope lock: %w", err)
		}
		for _, change := range batch {
			if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND program_id = $2`, userID, change.ProgramID); err != nil {
				return fmt.Errorf("grants: clear user roles: %w", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND program_id = $2`, userID, change.ProgramID); err != nil {
				return fmt.Errorf("grants: clear user permissions: %w", err)
			}
			for _, roleID := range change.RoleIDs {
				if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, program_id) VALUES ($1, $2, $3)`, userID, roleID, change.ProgramID); err != nil {
					return fmt.Errorf("grants: insert user role: %w", err)
				}
			}
			for _, permID := range change.PermissionIDs {
				if _, err := tx.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id, program_id) VALUES ($1, $2, $3)`, userID, permID, change.ProgramID); err != nil {
					return fmt.Errorf("grants: insert user permission: %w", err)
				}
			}
		}
		if precommit != nil {
			if err := precommit(); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureAssignment(byProgram map[int64]*ProgramAssignment, programID int64, programName string) *ProgramAssignment {
	if entry, ok := byProgram[programID]; ok {
		return entry
	}
	entry := &ProgramAssignment{
		ProgramID:   programID,
		ProgramName: programName,
		Roles:       []string{},
		Permissions: []string{},
	}
	byProgram[programID] = entry
	return entry
}

var _ RepositoryPort = (*Repository)(nil)
