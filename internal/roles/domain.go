// Package roles implements the role store: one row per identity carrying the
// application role, activation status and profile names. It is the source of
// truth for authorization decisions.
package roles

import (
	"time"

	"github.com/google/uuid"
)

// Role enumerates the application roles.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleStaff      Role = "staff"
	RoleResident   Role = "resident"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleStaff, RoleResident:
		return true
	}
	return false
}

// DashboardPath maps a role to its landing route.
func (r Role) DashboardPath() string {
	switch r {
	case RoleSuperadmin:
		return "/admin/dashboard"
	case RoleStaff:
		return "/staff/dashboard"
	case RoleResident:
		return "/resident/dashboard"
	}
	return "/login"
}

// RoleRow is the application-level record mapping an identity to a role and
// activation status. Exactly one row exists per identity once signup or
// invitation acceptance completes.
type RoleRow struct {
	UserID     uuid.UUID
	Role       Role
	IsActive   bool
	FirstName  string
	MiddleName *string
	LastName   string
	InvitedBy  *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
