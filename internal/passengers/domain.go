package passengers

import "time"

// Passenger is a record owned by exactly one program. All access to it is
// gated by that program's permission set, never the actor's global union.
type Passenger struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ProgramID   int64     `json:"program_id"`
	ProgramName string    `json:"program"`
	CreatedAt   time.Time `json:"-"`
}
