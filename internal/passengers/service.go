package passengers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyagehq/voyage/internal/authz"
	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/shared"
)

// Service applies program-scoped authorization to passenger operations. Every
// decision runs against the per-program permission set of the supplied
// profile; holding a permission in one program never authorizes an action in
// another.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns the passengers of every program where the actor holds
// view-passenger. Membership alone is not enough.
func (s *Service) List(ctx context.Context, actor profile.Profile) ([]Passenger, error) {
	viewable := authz.ProgramsWhere(actor, shared.PermViewPassenger)
	ids := make([]int64, 0, len(viewable))
	for _, program := range viewable {
		ids = append(ids, program.ID)
	}
	passengers, err := s.repo.ListByPrograms(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("passengers: list: %w", err)
	}
	return passengers, nil
}

// Create adds a passenger to a program the actor can create in.
func (s *Service) Create(ctx context.Context, actor profile.Profile, name string, programID int64) (Passenger, error) {
	name = strings.TrimSpace(name)
	if name == "" || programID <= 0 {
		return Passenger{}, fmt.Errorf("passengers: %w: name and program must be provided", shared.ErrInvalidSelection)
	}
	if !authz.CanInProgram(actor, programID, shared.PermCreatePassenger) {
		return Passenger{}, fmt.Errorf("passengers: create in program %d: %w", programID, shared.ErrForbidden)
	}
	p, err := s.repo.Create(ctx, name, programID)
	if err != nil {
		return Passenger{}, fmt.Errorf("passengers: create: %w", err)
	}
	s.recordAudit(ctx, actor.ID, "passengers.create", p)
	return p, nil
}

// Delete removes a passenger if the actor holds delete-passenger in the
// passenger's own program.
func (s *Service) Delete(ctx context.Context, actor profile.Profile, passengerID int64) error {
	p, err := s.repo.Get(ctx, passengerID)
	if err != nil {
		return fmt.Errorf("passengers: get %d: %w", passengerID, err)
	}
	if !authz.CanInProgram(actor, p.ProgramID, shared.PermDeletePassenger) {
		return fmt.Errorf("passengers: delete in program %d: %w", p.ProgramID, shared.ErrForbidden)
	}
	if err := s.repo.Delete(ctx, passengerID); err != nil {
		return fmt.Errorf("passengers: delete: %w", err)
	}
	s.recordAudit(ctx, actor.ID, "passengers.delete", p)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, p Passenger) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "passenger",
		EntityID: fmt.Sprintf("%d", p.ID),
		Meta:     map[string]any{"program_id": p.ProgramID},
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit passenger mutation", slog.Any("error", err))
	}
}
