// Package saga records the intermediate states of the two multi-step writes
// that span the identity service and the role store: invite (create identity,
// then upsert role row) and activate (write profile, then set password).
// Neither sequence is transactional; a recorded state makes a crash or a
// partial failure detectable instead of leaving silent orphan records. The
// records are for detection and manual remediation only — nothing replays or
// rolls back a stalled sequence.
package saga

import (
	"time"

	"github.com/google/uuid"
)

// Kind names the recorded sequence.
type Kind string

const (
	// KindInvite is the create-identity + upsert-role-row sequence.
	KindInvite Kind = "invite"
	// KindActivate is the write-profile + set-password sequence.
	KindActivate Kind = "activate"
)

// Status is the last step the sequence is known to have completed.
type Status string

const (
	// StatusPendingIdentity: invite accepted, identity not yet created.
	StatusPendingIdentity Status = "pending_identity"
	// StatusPendingRoleRow: identity exists, role row upsert outstanding.
	// A record stuck here is an orphan invitation.
	StatusPendingRoleRow Status = "pending_role_row"
	// StatusPendingPassword: role row activated, password set outstanding.
	// A record stuck here is a partial activation.
	StatusPendingPassword Status = "pending_password"
	// StatusComplete: the whole sequence finished.
	StatusComplete Status = "complete"
)

// Record is one tracked sequence.
type Record struct {
	ID        uuid.UUID
	Kind      Kind
	Status    Status
	Email     string
	UserID    *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stalled reports whether the record has sat in an intermediate state since
// before the cutoff.
func (r Record) Stalled(cutoff time.Time) bool {
	return r.Status != StatusComplete && r.UpdatedAt.Before(cutoff)
}
