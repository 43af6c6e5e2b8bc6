// Package session derives the client-side auth state: the combination of an
// identity-service session and the user's role row, re-derived on every
// auth event. The Bootstrapper replaces a process-wide auth context with an
// explicit, dependency-injected object whose lifecycle (Init, event
// subscription, Close) is visible at the call site.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/roles"
	"github.com/barangaylink/barangaylink/internal/shared"
)

// State is the derived auth state. It lives in memory only.
type State struct {
	Session *identity.Session
	User    *identity.Identity
	Role    *roles.Role
	Profile *roles.RoleRow
	// IsLoading stays true until both the session check and its role-row
	// lookup have resolved. A role-gated view must never render from
	// session presence alone.
	IsLoading bool
}

// IsAuthenticated reports whether a session is established.
func (s State) IsAuthenticated() bool {
	return s.Session != nil
}

// RoleReader is the subset of the role store the bootstrapper needs.
type RoleReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*roles.RoleRow, error)
}

// Bootstrapper owns the auth state for one client session.
type Bootstrapper struct {
	logger *slog.Logger
	client identity.Client
	roles  RoleReader
	events *identity.Broadcaster

	mu          sync.Mutex
	state       State
	generation  uint64
	subscribers []func(State)

	loopDone chan struct{}
	cancel   func()
}

// NewBootstrapper constructs a Bootstrapper. events carries the identity
// service's auth-state changes; the bootstrapper publishes its own sign-in
// and sign-out transitions there too.
func NewBootstrapper(logger *slog.Logger, client identity.Client, roleReader RoleReader, events *identity.Broadcaster) *Bootstrapper {
	return &Bootstrapper{
		logger: logger,
		client: client,
		roles:  roleReader,
		events: events,
		state:  State{IsLoading: true},
	}
}

// Init establishes the initial state and starts consuming auth events.
// restoredToken is the previously persisted access token, empty when none.
func (b *Bootstrapper) Init(ctx context.Context, restoredToken string) {
	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	ch, unsubscribe := b.events.Subscribe()
	b.loopDone = make(chan struct{})
	go func() {
		defer close(b.loopDone)
		defer unsubscribe()
		for {
			select {
			case <-loopCtx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				b.handleEvent(loopCtx, event)
			}
		}
	}()

	if restoredToken == "" {
		b.setState(State{IsLoading: false})
		return
	}
	ident, err := b.client.VerifyToken(ctx, restoredToken)
	if err != nil {
		b.setState(State{IsLoading: false})
		return
	}
	sess := &identity.Session{AccessToken: restoredToken, UserID: ident.ID, Email: ident.Email}
	b.refreshRole(ctx, sess, ident)
}

// Close stops the event loop. The state is left as-is; a disposed
// bootstrapper must not be reused.
func (b *Bootstrapper) Close() {
	if b.cancel != nil {
		b.cancel()
		<-b.loopDone
	}
}

// State returns a snapshot of the current auth state.
func (b *Bootstrapper) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribe registers a callback invoked after every state change.
func (b *Bootstrapper) Subscribe(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Login signs in with credentials and resolves the role row before the
// session is handed out. A deactivated account fails with
// shared.ErrAccountDeactivated and a deferred sign-out, closing the race
// where valid credentials would grant a flash of access.
func (b *Bootstrapper) Login(ctx context.Context, email, password string) (State, error) {
	sess, err := b.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return b.State(), err
	}
	row, err := b.roles.GetByUserID(ctx, sess.UserID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return b.State(), err
	}
	if row != nil && !row.IsActive {
		go func() {
			if err := b.client.SignOut(context.Background(), sess.AccessToken); err != nil {
				b.logger.Warn("deferred sign-out", slog.Any("error", err))
			}
		}()
		return b.State(), shared.ErrAccountDeactivated
	}
	b.events.Publish(identity.Event{Type: identity.EventSignedIn, Session: sess})
	ident := &identity.Identity{ID: sess.UserID, Email: sess.Email}
	b.refreshRole(ctx, sess, ident)
	return b.State(), nil
}

// Logout revokes the session and clears the state.
func (b *Bootstrapper) Logout(ctx context.Context) {
	state := b.State()
	if state.Session != nil {
		if err := b.client.SignOut(ctx, state.Session.AccessToken); err != nil {
			b.logger.Warn("sign out", slog.Any("error", err))
		}
	}
	b.events.Publish(identity.Event{Type: identity.EventSignedOut})
}

// handleEvent re-derives the state for one auth event. The role row is
// re-fetched on every event so the role never goes stale relative to the
// session.
func (b *Bootstrapper) handleEvent(ctx context.Context, event identity.Event) {
	switch event.Type {
	case identity.EventSignedOut:
		b.bumpGeneration()
		b.setState(State{IsLoading: false})
	case identity.EventSignedIn, identity.EventTokenRefreshed, identity.EventPasswordRecovery:
		if event.Session == nil {
			b.bumpGeneration()
			b.setState(State{IsLoading: false})
			return
		}
		ident := &identity.Identity{ID: event.Session.UserID, Email: event.Session.Email}
		b.refreshRole(ctx, event.Session, ident)
	}
}

// refreshRole fetches the role row for the session. Results are applied
// last-write-wins keyed by request generation: a stale in-flight fetch that
// resolves after a newer one is discarded, whatever the arrival order.
func (b *Bootstrapper) refreshRole(ctx context.Context, sess *identity.Session, ident *identity.Identity) {
	gen := b.bumpGeneration()
	b.setState(State{Session: sess, User: ident, IsLoading: true})

	row, err := b.roles.GetByUserID(ctx, sess.UserID)

	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	switch {
	case errors.Is(err, shared.ErrNotFound):
		// No profile yet: a just-confirmed resident whose row is created
		// asynchronously. Not an error; the role stays unresolved.
		b.applyState(gen, State{Session: sess, User: ident, IsLoading: false})
	case err != nil:
		b.logger.Error("role fetch", slog.Any("error", err))
		b.applyState(gen, State{Session: sess, User: ident, IsLoading: false})
	case !row.IsActive:
		// The account was deactivated while a session is live: terminate
		// the session immediately and drop role and profile.
		if err := b.client.SignOut(ctx, sess.AccessToken); err != nil {
			b.logger.Warn("forced sign-out", slog.Any("error", err))
		}
		b.applyState(gen, State{IsLoading: false})
	default:
		role := row.Role
		b.applyState(gen, State{Session: sess, User: ident, Role: &role, Profile: row, IsLoading: false})
	}
}

func (b *Bootstrapper) bumpGeneration() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	return b.generation
}

func (b *Bootstrapper) applyState(gen uint64, state State) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.state = state
	subs := make([]func(State), len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

func (b *Bootstrapper) setState(state State) {
	b.mu.Lock()
	b.state = state
	subs := make([]func(State), len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}
