// Package admin implements the elevated-credential proxy: the middleware
// gates and the privileged user-management endpoints.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/platform/httpx"
	"github.com/barangaylink/barangaylink/internal/revocation"
	"github.com/barangaylink/barangaylink/internal/roles"
	"github.com/barangaylink/barangaylink/internal/shared"
)

// Authenticator wires the token verifier and the superadmin gate.
type Authenticator struct {
	logger   *slog.Logger
	verifier identity.Client
	roles    roles.Repository
	revoked  *revocation.Store
}

// NewAuthenticator constructs an Authenticator. revoked may be nil when no
// revocation store is configured.
func NewAuthenticator(logger *slog.Logger, verifier identity.Client, repo roles.Repository, revoked *revocation.Store) *Authenticator {
	return &Authenticator{logger: logger, verifier: verifier, roles: repo, revoked: revoked}
}

// RequireAuth resolves the bearer token to an identity and attaches it to
// the request context. Fails closed with 401 on a missing header, an invalid
// or expired token, or a revoked identity. Nothing is cached or retried.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.Error(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		ident, err := a.verifier.VerifyToken(r.Context(), token)
		if err != nil {
			httpx.Error(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if a.revoked != nil {
			revoked, err := a.revoked.IsRevoked(r.Context(), ident.ID)
			if err != nil {
				a.logger.Warn("revocation check", slog.Any("error", err))
			} else if revoked {
				httpx.Error(w, http.StatusUnauthorized, "session terminated")
				return
			}
		}
		ctx := identity.ContextWithIdentity(r.Context(), ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSuperadmin checks the caller's role row on every request, so a role
// downgrade takes effect on the very next call. Missing row or any role other
// than superadmin answers 403; the caller stays logged in.
func (a *Authenticator) RequireSuperadmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := identity.IdentityFromContext(r.Context())
		if ident == nil {
			httpx.Error(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		row, err := a.roles.GetByUserID(r.Context(), ident.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Error(w, http.StatusForbidden, "superadmin role required")
				return
			}
			a.logger.Error("superadmin gate lookup", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		if row.Role != roles.RoleSuperadmin {
			httpx.Error(w, http.StatusForbidden, "superadmin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
