package shared

import (
	"fmt"
	"hash/fnv"
)

// RoleGrantKey identifies the (role, program) mutable unit of grant state.
func RoleGrantKey(roleID, programID int64) string {
	return fmt.Sprintf("grant:role:%d:program:%d", roleID, programID)
}

// UserAssignmentsKey identifies the (user, all-programs) mutable unit.
func UserAssignmentsKey(userID int64) string {
	return fmt.Sprintf("grant:user:%d", userID)
}

// ScopeLockID hashes a scope key into the int64 space used by postgres
// advisory locks. Collisions only cost extra serialization, never
// correctness.
func ScopeLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
