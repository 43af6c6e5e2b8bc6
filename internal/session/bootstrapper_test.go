package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/roles"
	"github.com/barangaylink/barangaylink/internal/shared"
)

type fakeClient struct {
	mu sync.Mutex

	sessions map[string]*identity.Session // email -> session on sign-in
	idents   map[string]*identity.Identity

	signedOut []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		sessions: make(map[string]*identity.Session),
		idents:   make(map[string]*identity.Identity),
	}
}

func (f *fakeClient) addUser(email string) *identity.Session {
	id := uuid.New()
	token := "token-" + id.String()
	sess := &identity.Session{AccessToken: token, UserID: id, Email: email}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[email] = sess
	f.idents[token] = &identity.Identity{ID: id, Email: email}
	return sess
}

func (f *fakeClient) VerifyToken(ctx context.Context, accessToken string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.idents[accessToken]
	if !ok {
		return nil, identity.ErrTokenInvalid
	}
	return ident, nil
}

func (f *fakeClient) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[email]
	if !ok || password != "Passw0rd!" {
		return nil, shared.ErrInvalidCredentials
	}
	return sess, nil
}

func (f *fakeClient) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, accessToken)
	return nil
}

func (f *fakeClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return errors.New("not implemented")
}

func (f *fakeClient) signOutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signedOut)
}

var _ identity.Client = (*fakeClient)(nil)

type fakeRoles struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*roles.RoleRow
	err  error
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{rows: make(map[uuid.UUID]*roles.RoleRow)}
}

func (f *fakeRoles) set(row *roles.RoleRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.UserID] = row
}

func (f *fakeRoles) GetByUserID(ctx context.Context, userID uuid.UUID) (*roles.RoleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	row, ok := f.rows[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBootstrapper(t *testing.T, client *fakeClient, repo RoleReader) *Bootstrapper {
	t.Helper()
	b := NewBootstrapper(testLogger(), client, repo, identity.NewBroadcaster())
	b.Init(context.Background(), "")
	t.Cleanup(b.Close)
	return b
}

func TestInitWithoutToken(t *testing.T) {
	b := newBootstrapper(t, newFakeClient(), newFakeRoles())

	state := b.State()
	assert.False(t, state.IsLoading)
	assert.False(t, state.IsAuthenticated())
}

func TestInitWithRestoredToken(t *testing.T) {
	client := newFakeClient()
	repo := newFakeRoles()
	sess := client.addUser("ana@example.com")
	repo.set(&roles.RoleRow{UserID: sess.UserID, Role: roles.RoleStaff, IsActive: true, FirstName: "Ana", LastName: "Cruz"})

	b := NewBootstrapper(testLogger(), client, repo, identity.NewBroadcaster())
	b.Init(context.Background(), sess.AccessToken)
	t.Cleanup(b.Close)

	state := b.State()
	assert.False(t, state.IsLoading)
	assert.True(t, state.IsAuthenticated())
	require.NotNil(t, state.Role)
	assert.Equal(t, roles.RoleStaff, *state.Role)
	require.NotNil(t, state.Profile)
	assert.Equal(t, "Cruz", state.Profile.LastName)
}

func TestInitWithDeadToken(t *testing.T) {
	client := newFakeClient()
	b := NewBootstrapper(testLogger(), client, newFakeRoles(), identity.NewBroadcaster())
	b.Init(context.Background(), "stale-token")
	t.Cleanup(b.Close)

	state := b.State()
	assert.False(t, state.IsLoading)
	assert.False(t, state.IsAuthenticated())
}

func TestLoginResolvesRoleBeforeReturning(t *testing.T) {
	client := newFakeClient()
	repo := newFakeRoles()
	sess := client.addUser("ana@example.com")
	repo.set(&roles.RoleRow{UserID: sess.UserID, Role: roles.RoleStaff, IsActive: true})

	b := newBootstrapper(t, client, repo)

	state, err := b.Login(context.Background(), "ana@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, state.IsAuthenticated())
	assert.False(t, state.IsLoading)
	require.NotNil(t, state.Role)
	assert.Equal(t, roles.RoleStaff, *state.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	client := newFakeClient()
	client.addUser("ana@example.com")

	b := newBootstrapper(t, client, newFakeRoles())

	_, err := b.Login(context.Background(), "ana@example.com", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.False(t, b.State().IsAuthenticated())
}

func TestLoginDeactivatedAccount(t *testing.T) {
	client := newFakeClient()
	repo := newFakeRoles()
	sess := client.addUser("ana@example.com")
	repo.set(&roles.RoleRow{UserID: sess.UserID, Role: roles.RoleStaff, IsActive: false})

	b := newBootstrapper(t, client, repo)

	_, err := b.Login(context.Background(), "ana@example.com", "Passw0rd!")
	assert.ErrorIs(t, err, shared.ErrAccountDeactivated)
	assert.False(t, b.State().IsAuthenticated())

	// The credentials were valid, so the issued session must be torn down.
	require.Eventually(t, func() bool {
		return client.signOutCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLoginWithoutProfileLeavesRoleUnresolved(t *testing.T) {
	client := newFakeClient()
	client.addUser("ana@example.com")

	b := newBootstrapper(t, client, newFakeRoles())

	state, err := b.Login(context.Background(), "ana@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, state.IsAuthenticated())
	assert.Nil(t, state.Role)
	assert.Nil(t, state.Profile)
	assert.False(t, state.IsLoading)
}

func TestDeactivationDuringLiveSessionForcesSignOut(t *testing.T) {
	client := newFakeClient()
	repo := newFakeRoles()
	sess := client.addUser("ana@example.com")
	repo.set(&roles.RoleRow{UserID: sess.UserID, Role: roles.RoleStaff, IsActive: true})

	events := identity.NewBroadcaster()
	b := NewBootstrapper(testLogger(), client, repo, events)
	b.Init(context.Background(), "")
	t.Cleanup(b.Close)

	_, err := b.Login(context.Background(), "ana@example.com", "Passw0rd!")
	require.NoError(t, err)

	// Deactivate behind the live session, then let any auth event trigger the
	// role re-check.
	repo.set(&roles.RoleRow{UserID: sess.UserID, Role: roles.RoleStaff, IsActive: false})
	events.Publish(identity.Event{Type: identity.EventTokenRefreshed, Session: sess})

	require.Eventually(t, func() bool {
		state := b.State()
		return !state.IsAuthenticated() && !state.IsLoading
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, client.signOutCount(), 1)
}

func TestLogoutClearsState(t *testing.T) {
	client := newFakeClient()
	repo := newFakeRoles()
	sess := client.addUser("ana@example.com")
	repo.set(&roles.RoleRow{UserID: sess.UserID, Role: roles.RoleStaff, IsActive: true})

	b := newBootstrapper(t, client, repo)

	_, err := b.Login(context.Background(), "ana@example.com", "Passw0rd!")
	require.NoError(t, err)

	b.Logout(context.Background())

	require.Eventually(t, func() bool {
		return !b.State().IsAuthenticated()
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, client.signOutCount(), 1)
}

// gatedRoles blocks each lookup on its own gate so tests can control the
// order in which in-flight fetches resolve.
type gatedRoles struct {
	mu    sync.Mutex
	gates []chan struct{}
	rows  []*roles.RoleRow
	next  int
}

func (g *gatedRoles) GetByUserID(ctx context.Context, userID uuid.UUID) (*roles.RoleRow, error) {
	g.mu.Lock()
	i := g.next
	g.next++
	gate := g.gates[i]
	row := g.rows[i]
	g.mu.Unlock()
	<-gate
	if row == nil {
		return nil, shared.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (g *gatedRoles) started() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

func TestStaleRoleFetchIsDiscarded(t *testing.T) {
	client := newFakeClient()
	userID := uuid.New()
	sess := &identity.Session{AccessToken: "tok", UserID: userID, Email: "ana@example.com"}
	ident := &identity.Identity{ID: userID, Email: "ana@example.com"}

	gate1 := make(chan struct{})
	gate2 := make(chan struct{})
	repo := &gatedRoles{
		gates: []chan struct{}{gate1, gate2},
		rows: []*roles.RoleRow{
			{UserID: userID, Role: roles.RoleStaff, IsActive: false}, // stale fetch
			{UserID: userID, Role: roles.RoleStaff, IsActive: true},  // newer fetch
		},
	}

	b := NewBootstrapper(testLogger(), client, repo, identity.NewBroadcaster())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.refreshRole(context.Background(), sess, ident)
	}()
	require.Eventually(t, func() bool { return repo.started() == 1 }, time.Second, time.Millisecond)

	go func() {
		defer wg.Done()
		b.refreshRole(context.Background(), sess, ident)
	}()
	require.Eventually(t, func() bool { return repo.started() == 2 }, time.Second, time.Millisecond)

	// The newer fetch resolves first, then the stale one.
	close(gate2)
	require.Eventually(t, func() bool {
		state := b.State()
		return !state.IsLoading && state.Role != nil
	}, time.Second, time.Millisecond)

	close(gate1)
	wg.Wait()

	// The stale result carried a deactivated row; had it applied, the session
	// would have been torn down. Last write wins regardless of arrival order.
	state := b.State()
	assert.True(t, state.IsAuthenticated())
	require.NotNil(t, state.Role)
	assert.Equal(t, roles.RoleStaff, *state.Role)
	assert.Equal(t, 0, client.signOutCount())
}

func TestSubscribeObservesTransitions(t *testing.T) {
	client := newFakeClient()
	repo := newFakeRoles()
	sess := client.addUser("ana@example.com")
	repo.set(&roles.RoleRow{UserID: sess.UserID, Role: roles.RoleStaff, IsActive: true})

	b := newBootstrapper(t, client, repo)

	var mu sync.Mutex
	var seen []bool
	b.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s.IsAuthenticated())
		mu.Unlock()
	})

	_, err := b.Login(context.Background(), "ana@example.com", "Passw0rd!")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[len(seen)-1])
}
