// Package guard decides whether a route renders or redirects for a given
// auth state. It is a pure function of its inputs.
package guard

import (
	"github.com/barangaylink/barangaylink/internal/roles"
	"github.com/barangaylink/barangaylink/internal/session"
)

// Outcome is the guard's verdict.
type Outcome int

const (
	// Wait renders nothing: the auth state is still loading and flashing a
	// wrong view is worse than a blank one.
	Wait Outcome = iota
	// Render shows the requested route.
	Render
	// Redirect navigates to Decision.Target instead.
	Redirect
)

// Decision carries the verdict and, for Redirect, the target path.
type Decision struct {
	Outcome Outcome
	Target  string
}

// RouteSpec describes a route's access rules. GuestOnly and AllowedRoles
// are mutually exclusive in practice; GuestOnly wins if both are set.
type RouteSpec struct {
	GuestOnly    bool
	AllowedRoles []roles.Role
}

// Decide maps an auth state and a route spec to a decision.
func Decide(state session.State, route RouteSpec) Decision {
	if state.IsLoading {
		return Decision{Outcome: Wait}
	}
	if route.GuestOnly {
		if state.IsAuthenticated() {
			return Decision{Outcome: Redirect, Target: DashboardPath(state.Role)}
		}
		return Decision{Outcome: Render}
	}
	if len(route.AllowedRoles) > 0 {
		if !state.IsAuthenticated() || state.Role == nil || !roleAllowed(*state.Role, route.AllowedRoles) {
			return Decision{Outcome: Redirect, Target: "/login"}
		}
	}
	return Decision{Outcome: Render}
}

// DashboardPath maps a role (possibly unresolved) to its landing route.
func DashboardPath(role *roles.Role) string {
	if role == nil {
		return "/login"
	}
	return role.DashboardPath()
}

func roleAllowed(role roles.Role, allowed []roles.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
