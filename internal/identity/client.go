package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid indicates a missing, malformed or expired access token.
	// Token validity is binary and time-sensitive; callers must not cache or
	// retry a failed check.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrNotFound indicates the identity does not exist.
	ErrNotFound = errors.New("identity not found")
)

// Client is the low-privilege (anon key) tier of the identity service. This
// is the capability set a browser client would hold.
type Client interface {
	// VerifyToken resolves an access token to its identity. Fails closed.
	VerifyToken(ctx context.Context, accessToken string) (*Identity, error)
	// SignInWithPassword exchanges credentials for a session.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignOut revokes the session behind the access token.
	SignOut(ctx context.Context, accessToken string) error
	// UpdatePassword sets a new password for the token's identity. The
	// service may rotate session state as a side effect.
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}

// AdminClient is the elevated (service key) tier. Only the admin proxy holds
// it; the key must never reach a browser.
type AdminClient interface {
	GetUser(ctx context.Context, id uuid.UUID) (*Identity, error)
	ListUsers(ctx context.Context) ([]Identity, error)
	// InviteByEmail creates an identity and emails a time-boxed invitation
	// link. The metadata bag is stored on the identity verbatim.
	InviteByEmail(ctx context.Context, email string, metadata map[string]any) (*Identity, error)
	// SignOutUser terminates every live session for the identity.
	SignOutUser(ctx context.Context, id uuid.UUID) error
}
