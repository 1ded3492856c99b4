package passengers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagehq/voyage/internal/shared"
)

// RepositoryPort defines data access methods for passengers.
type RepositoryPort interface {
	ListByPrograms(ctx context.Context, programIDs []int64) ([]Passenger, error)
	Get(ctx context.Context, id int64) (Passenger, error)
	Create(ctx context.Context, name string, programID int64) (Passenger, error)
	Delete(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByPrograms returns passengers in any of the given programs, ordered by id.
func (r *Repository) ListByPrograms(ctx context.Context, programIDs []int64) ([]Passenger, error) {
	if len(programIDs) == 0 {
		return []Passenger{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT pa.id, pa.name, pa.program_id, pr.name, pa.created_at
		FROM passengers pa
		JOIN programs pr ON pr.id = pa.program_id
		WHERE pa.program_id = ANY($1)
		ORDER BY pa.id`, programIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	passengers := []Passenger{}
	for rows.Next() {
		var p Passenger
		if err := rows.Scan(&p.ID, &p.Name, &p.ProgramID, &p.ProgramName, &p.CreatedAt); err != nil {
			return nil, err
		}
		passengers = append(passengers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return passengers, nil
}

// Get fetches one passenger by id.
func (r *Repository) Get(ctx context.Context, id int64) (Passenger, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT pa.id, pa.name, pa.program_id, pr.name, pa.created_at
		FROM passengers pa
		JOIN programs pr ON pr.id = pa.program_id
		WHERE pa.id = $1`, id)
	var p Passenger
	if err := row.Scan(&p.ID, &p.Name, &p.ProgramID, &p.ProgramName, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Passenger{}, shared.ErrNotFound
		}
		return Passenger{}, err
	}
	return p, nil
}

// Create inserts a passenger into a program.
func (r *Repository) Create(ctx context.Context, name string, programID int64) (Passenger, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO passengers (name, program_id, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at`, name, programID)
	p := Passenger{Name: name, ProgramID: programID}
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return Passenger{}, err
	}
	return p, nil
}

// Delete removes a passenger by id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM passengers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
