// Package revocation keeps a Redis-backed set of identities whose sessions
// must be treated as terminated. Deactivation writes here in addition to the
// identity service's global sign-out, so a token that slips through the
// service's revocation still fails at the proxy on the next request.
package revocation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "revoked:"

// Store marks identities as force-signed-out.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store. The TTL bounds how long a mark outlives the
// deactivation; role-store checks remain the source of truth after expiry.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Revoke marks every live session of the identity as terminated.
func (s *Store) Revoke(ctx context.Context, userID uuid.UUID) error {
	return s.client.Set(ctx, keyPrefix+userID.String(), "1", s.ttl).Err()
}

// Clear removes the mark, e.g. on reactivation.
func (s *Store) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.client.Del(ctx, keyPrefix+userID.String()).Err()
}

// IsRevoked reports whether the identity has a live revocation mark.
func (s *Store) IsRevoked(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+userID.String()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
