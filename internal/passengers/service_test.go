package passengers

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagehq/voyage/internal/profile"
	"github.com/voyagehq/voyage/internal/shared"
)

type mockPassengerRepo struct {
	passengers map[int64]Passenger
	nextID     int64
}

func newMockPassengerRepo() *mockPassengerRepo {
	return &mockPassengerRepo{passengers: make(map[int64]Passenger), nextID: 1}
}

func (m *mockPassengerRepo) ListByPrograms(ctx context.Context, programIDs []int64) ([]Passenger, error) {
	allowed := make(map[int64]struct{}, len(programIDs))
	for _, id := range programIDs {
		allowed[id] = struct{}{}
	}
	result := []Passenger{}
	for _, p := range m.passengers {
		if _, ok := allowed[p.ProgramID]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *mockPassengerRepo) Get(ctx context.Context, id int64) (Passenger, error) {
	p, ok := m.passengers[id]
	if !ok {
		return Passenger{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *mockPassengerRepo) Create(ctx context.Context, name string, programID int64) (Passenger, error) {
	p := Passenger{ID: m.nextID, Name: name, ProgramID: programID}
	m.passengers[p.ID] = p
	m.nextID++
	return p, nil
}

func (m *mockPassengerRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.passengers[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.passengers, id)
	return nil
}

// actor can view in both programs, create only in Atlantic Crossing, delete
// only in Pacific Loop.
func actorProfile() profile.Profile {
	return profile.Profile{
		ID:          7,
		Permissions: []string{"create-passenger", "delete-passenger", "view-passenger"},
		Programs: []profile.ProgramAssignment{
			{ID: 10, Name: "Atlantic Crossing", Permissions: []string{"view-passenger", "create-passenger"}},
			{ID: 20, Name: "Pacific Loop", Permissions: []string{"view-passenger", "delete-passenger"}},
			{ID: 30, Name: "Northern Lights", Permissions: []string{}},
		},
	}
}

func newPassengerService(repo RepositoryPort) *Service {
	return NewService(repo, nil, slog.Default())
}

func TestListReturnsOnlyViewablePrograms(t *testing.T) {
	repo := newMockPassengerRepo()
	svc := newPassengerService(repo)
	ctx := context.Background()

	repo.passengers[1] = Passenger{ID: 1, Name: "Ada", ProgramID: 10}
	repo.passengers[2] = Passenger{ID: 2, Name: "Ben", ProgramID: 20}
	repo.passengers[3] = Passenger{ID: 3, Name: "Cleo", ProgramID: 30}

	got, err := svc.List(ctx, actorProfile())
	require.NoError(t, err)
	require.Len(t, got, 2, "programs without view-passenger stay hidden")
	for _, p := range got {
		assert.NotEqual(t, int64(30), p.ProgramID)
	}
}

func TestCreateRequiresPermissionInTargetProgram(t *testing.T) {
	repo := newMockPassengerRepo()
	svc := newPassengerService(repo)
	ctx := context.Background()
	actor := actorProfile()

	p, err := svc.Create(ctx, actor, "Ada", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.ProgramID)

	// create-passenger is in the actor's global union but not granted in
	// Pacific Loop; the program-scoped check must deny
	_, err = svc.Create(ctx, actor, "Ben", 20)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Create(ctx, actor, "Cleo", 99)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateValidatesSelection(t *testing.T) {
	svc := newPassengerService(newMockPassengerRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, actorProfile(), "   ", 10)
	assert.ErrorIs(t, err, shared.ErrInvalidSelection)

	_, err = svc.Create(ctx, actorProfile(), "Ada", 0)
	assert.ErrorIs(t, err, shared.ErrInvalidSelection)
}

func TestDeleteChecksPassengerOwnProgram(t *testing.T) {
	repo := newMockPassengerRepo()
	svc := newPassengerService(repo)
	ctx := context.Background()
	actor := actorProfile()

	repo.passengers[1] = Passenger{ID: 1, Name: "Ada", ProgramID: 10}
	repo.passengers[2] = Passenger{ID: 2, Name: "Ben", ProgramID: 20}

	// delete-passenger is held in Pacific Loop, not Atlantic Crossing
	err := svc.Delete(ctx, actor, 1)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Contains(t, repo.passengers, int64(1))

	err = svc.Delete(ctx, actor, 2)
	require.NoError(t, err)
	assert.NotContains(t, repo.passengers, int64(2))
}

func TestDeleteUnknownPassenger(t *testing.T) {
	svc := newPassengerService(newMockPassengerRepo())

	err := svc.Delete(context.Background(), actorProfile(), 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
