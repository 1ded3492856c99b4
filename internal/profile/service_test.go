package profile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagehq/voyage/internal/shared"
)

type mockAssignments struct {
	mu    sync.Mutex
	state map[int64][]ProgramAssignment
	err   error
	reads int
}

func (m *mockAssignments) ListUserAssignments(ctx context.Context, userID int64) ([]ProgramAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	return m.state[userID], nil
}

func (m *mockAssignments) set(userID int64, assignments []ProgramAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[userID] = assignments
}

type mockIdentities struct {
	users map[int64]Identity
}

func (m *mockIdentities) LookupIdentity(ctx context.Context, userID int64) (Identity, error) {
	id, ok := m.users[userID]
	if !ok {
		return Identity{}, shared.ErrNotFound
	}
	return id, nil
}

func newFixture() (*mockAssignments, *Service) {
	assignments := &mockAssignments{state: map[int64][]ProgramAssignment{
		7: {
			{ID: 10, Name: "Atlantic Crossing", Roles: []string{"program-manager"}, Permissions: []string{"view-passenger", "create-passenger"}},
			{ID: 20, Name: "Pacific Loop", Roles: []string{"agent"}, Permissions: []string{"view-passenger", "delete-passenger"}},
		},
	}}
	identities := &mockIdentities{users: map[int64]Identity{
		7: {ID: 7, Name: "Morgan", Email: "morgan@voyage.local"},
	}}
	return assignments, NewService(assignments, identities)
}

func TestBuildComputesUnions(t *testing.T) {
	_, svc := newFixture()

	p, err := svc.Build(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "morgan@voyage.local", p.Email)
	// unions are exactly the union of the per-program sets, sorted
	assert.Equal(t, []string{"agent", "program-manager"}, p.Roles)
	assert.Equal(t, []string{"create-passenger", "delete-passenger", "view-passenger"}, p.Permissions)
	require.Len(t, p.Programs, 2)
	assert.Equal(t, []string{"view-passenger", "create-passenger"}, p.Programs[0].Permissions)
}

func TestBuildReflectsMutationsImmediately(t *testing.T) {
	assignments, svc := newFixture()
	ctx := context.Background()

	before, err := svc.Build(ctx, 7)
	require.NoError(t, err)
	assert.Contains(t, before.Permissions, "delete-passenger")

	// revoke the Pacific Loop assignment entirely
	assignments.set(7, []ProgramAssignment{
		{ID: 10, Name: "Atlantic Crossing", Roles: []string{"program-manager"}, Permissions: []string{"view-passenger", "create-passenger"}},
	})

	after, err := svc.Build(ctx, 7)
	require.NoError(t, err)
	assert.NotContains(t, after.Permissions, "delete-passenger")
	assert.NotContains(t, after.Roles, "agent")
	assert.Len(t, after.Programs, 1)
}

func TestBuildUserWithoutAssignments(t *testing.T) {
	assignments, svc := newFixture()
	assignments.set(7, nil)

	p, err := svc.Build(context.Background(), 7)
	require.NoError(t, err)

	assert.Empty(t, p.Roles)
	assert.Empty(t, p.Permissions)
	assert.Empty(t, p.Programs)
}

func TestBuildUnknownUser(t *testing.T) {
	_, svc := newFixture()

	_, err := svc.Build(context.Background(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBuildCollapsesConcurrentReads(t *testing.T) {
	assignments, svc := newFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	const callers = 16
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.Build(ctx, 7)
			assert.NoError(t, err)
			assert.Equal(t, int64(7), p.ID)
		}()
	}
	wg.Wait()

	assignments.mu.Lock()
	reads := assignments.reads
	assignments.mu.Unlock()
	assert.Less(t, reads, callers, "concurrent builds of one user should share a store read")
}

// blockingAssignments parks inside the store read until released and
// reports whether its context was already canceled at that point.
type blockingAssignments struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAssignments) ListUserAssignments(ctx context.Context, userID int64) ([]ProgramAssignment, error) {
	b.entered <- struct{}{}
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []ProgramAssignment{
		{ID: 10, Name: "Atlantic Crossing", Roles: []string{"agent"}, Permissions: []string{"view-passenger"}},
	}, nil
}

func TestBuildSurvivesFirstCallerCancel(t *testing.T) {
	source := &blockingAssignments{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	identities := &mockIdentities{users: map[int64]Identity{
		7: {ID: 7, Name: "Morgan", Email: "morgan@voyage.local"},
	}}
	svc := NewService(source, identities)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Build(firstCtx, 7)
		firstErr <- err
	}()
	<-source.entered

	type result struct {
		p   Profile
		err error
	}
	secondRes := make(chan result, 1)
	go func() {
		p, err := svc.Build(context.Background(), 7)
		secondRes <- result{p: p, err: err}
	}()

	// let the second caller join the in-flight build, then abandon the first
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(source.release)
	res := <-secondRes
	require.NoError(t, res.err, "a survivor must not inherit the canceled caller's context")
	assert.Equal(t, []string{"view-passenger"}, res.p.Permissions)
}
