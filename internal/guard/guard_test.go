package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/roles"
	"github.com/barangaylink/barangaylink/internal/session"
)

func authedState(role roles.Role) session.State {
	r := role
	return session.State{
		Session: &identity.Session{AccessToken: "tok"},
		Role:    &r,
	}
}

func TestDecideWaitsWhileLoading(t *testing.T) {
	state := session.State{IsLoading: true}

	d := Decide(state, RouteSpec{AllowedRoles: []roles.Role{roles.RoleSuperadmin}})
	assert.Equal(t, Wait, d.Outcome)

	d = Decide(state, RouteSpec{GuestOnly: true})
	assert.Equal(t, Wait, d.Outcome)
}

func TestDecideRoleGate(t *testing.T) {
	superOnly := RouteSpec{AllowedRoles: []roles.Role{roles.RoleSuperadmin}}

	tests := []struct {
		name   string
		state  session.State
		route  RouteSpec
		want   Outcome
		target string
	}{
		{
			name:  "allowed role renders",
			state: authedState(roles.RoleSuperadmin),
			route: superOnly,
			want:  Render,
		},
		{
			name:   "staff on superadmin route redirects to login",
			state:  authedState(roles.RoleStaff),
			route:  superOnly,
			want:   Redirect,
			target: "/login",
		},
		{
			name:   "unauthenticated redirects to login",
			state:  session.State{},
			route:  superOnly,
			want:   Redirect,
			target: "/login",
		},
		{
			name: "session without resolved role redirects to login",
			state: session.State{
				Session: &identity.Session{AccessToken: "tok"},
			},
			route:  superOnly,
			want:   Redirect,
			target: "/login",
		},
		{
			name:  "open route renders for anyone",
			state: session.State{},
			route: RouteSpec{},
			want:  Render,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.state, tt.route)
			assert.Equal(t, tt.want, d.Outcome)
			assert.Equal(t, tt.target, d.Target)
		})
	}
}

func TestDecideGuestOnly(t *testing.T) {
	guest := RouteSpec{GuestOnly: true}

	d := Decide(session.State{}, guest)
	assert.Equal(t, Render, d.Outcome)

	d = Decide(authedState(roles.RoleStaff), guest)
	assert.Equal(t, Redirect, d.Outcome)
	assert.Equal(t, "/staff/dashboard", d.Target)

	d = Decide(authedState(roles.RoleSuperadmin), guest)
	assert.Equal(t, Redirect, d.Outcome)
	assert.Equal(t, "/admin/dashboard", d.Target)

	// Authenticated but the role row has not resolved: park on /login rather
	// than guessing a dashboard.
	noRole := session.State{Session: &identity.Session{AccessToken: "tok"}}
	d = Decide(noRole, guest)
	assert.Equal(t, Redirect, d.Outcome)
	assert.Equal(t, "/login", d.Target)
}

func TestDashboardPath(t *testing.T) {
	assert.Equal(t, "/login", DashboardPath(nil))
	staff := roles.RoleStaff
	assert.Equal(t, "/staff/dashboard", DashboardPath(&staff))
	resident := roles.RoleResident
	assert.Equal(t, "/resident/dashboard", DashboardPath(&resident))
}
