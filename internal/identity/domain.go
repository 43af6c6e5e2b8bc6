// Package identity talks to the hosted identity service. The service owns
// credentials and sessions; this package only resolves tokens, creates
// invitations and mutates passwords through the service's REST surface.
package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/barangaylink/barangaylink/internal/roles"
)

// Identity is the authentication-service record for a person.
type Identity struct {
	ID           uuid.UUID
	Email        string
	Metadata     map[string]any
	CreatedAt    time.Time
	LastSignInAt *time.Time
}

// Session is a short-lived token handed to a signed-in identity.
type Session struct {
	AccessToken string
	UserID      uuid.UUID
	Email       string
	ExpiresAt   time.Time
}

// Kind distinguishes how an identity came to exist.
type Kind int

const (
	// KindOrdinary is an identity created through normal signup.
	KindOrdinary Kind = iota
	// KindPendingInvitation is an identity created by an invite and not yet
	// activated.
	KindPendingInvitation
)

// Provenance is the typed reading of the metadata bag set at invitation
// time. Parsing happens once, here, so the invited/ordinary distinction is
// carried as a tagged value instead of string lookups scattered around.
type Provenance struct {
	Kind         Kind
	AssignedRole roles.Role
	InvitedBy    *uuid.UUID
}

// Provenance derives the typed invitation state from the metadata bag. A
// missing or unknown role means ordinary signup.
func (i *Identity) Provenance() Provenance {
	if i == nil || i.Metadata == nil {
		return Provenance{Kind: KindOrdinary}
	}
	raw, ok := i.Metadata["role"].(string)
	if !ok {
		return Provenance{Kind: KindOrdinary}
	}
	role := roles.Role(raw)
	if !role.Valid() {
		return Provenance{Kind: KindOrdinary}
	}
	p := Provenance{Kind: KindPendingInvitation, AssignedRole: role}
	if s, ok := i.Metadata["invited_by"].(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			p.InvitedBy = &id
		}
	}
	return p
}
