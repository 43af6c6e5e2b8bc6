// Package invite implements the accept-invitation flow: the state machine a
// freshly invited user walks through to pick a password and activate their
// account.
package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/roles"
)

// Phase is the flow's current state.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseForm
	PhaseSuccess
	// PhaseInvalidLink is terminal. Recovery is "request a new invitation",
	// not a retry of this flow.
	PhaseInvalidLink
)

// ErrNotInForm is returned when Submit is called outside the Form phase.
var ErrNotInForm = errors.New("invite: flow is not accepting a submission")

// Activator performs the elevated profile write that activates the account.
type Activator interface {
	Activate(ctx context.Context, accessToken string, userID uuid.UUID, firstName string, middleName *string, lastName string) error
}

// Form carries the user's input.
type Form struct {
	FirstName       string `validate:"required"`
	MiddleName      string
	LastName        string `validate:"required"`
	Password        string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

// Flow is one accept-invitation attempt.
type Flow struct {
	logger    *slog.Logger
	client    identity.Client
	activator Activator
	validator *validator.Validate

	phase        Phase
	accessToken  string
	userID       uuid.UUID
	assignedRole roles.Role
}

// NewFlow constructs a Flow in the Loading phase.
func NewFlow(logger *slog.Logger, client identity.Client, activator Activator) *Flow {
	return &Flow{
		logger:    logger,
		client:    client,
		activator: activator,
		validator: validator.New(),
		phase:     PhaseLoading,
	}
}

// Phase returns the flow's current state.
func (f *Flow) Phase() Phase {
	return f.phase
}

// AssignedRole returns the role the invitation carries. Valid after Start.
func (f *Flow) AssignedRole() roles.Role {
	return f.assignedRole
}

// Start resolves the session behind the invitation link. Only an identity
// whose provenance is a pending invitation may proceed; anything else is an
// invalid link. The user id is captured here, before any password mutation
// can alter session state.
func (f *Flow) Start(ctx context.Context, accessToken string) Phase {
	ident, err := f.client.VerifyToken(ctx, accessToken)
	if err != nil {
		f.phase = PhaseInvalidLink
		return f.phase
	}
	prov := ident.Provenance()
	if prov.Kind != identity.KindPendingInvitation {
		f.phase = PhaseInvalidLink
		return f.phase
	}
	f.accessToken = accessToken
	f.userID = ident.ID
	f.assignedRole = prov.AssignedRole
	f.phase = PhaseForm
	return f.phase
}

// Submit validates the form and completes the activation. The profile write
// runs first with elevated credentials; the password step follows and may
// itself disturb session state, so activation persists regardless. A
// profile-write failure aborts before the password step. A password failure
// after the profile write leaves the account activated without a usable
// password; that window is recorded, not rolled back.
func (f *Flow) Submit(ctx context.Context, form Form) error {
	if f.phase != PhaseForm {
		return ErrNotInForm
	}
	if err := f.validator.Struct(form); err != nil {
		return fmt.Errorf("invite: %w", err)
	}

	var middle *string
	if form.MiddleName != "" {
		middle = &form.MiddleName
	}
	if err := f.activator.Activate(ctx, f.accessToken, f.userID, form.FirstName, middle, form.LastName); err != nil {
		return fmt.Errorf("invite: activate profile: %w", err)
	}

	if err := f.client.UpdatePassword(ctx, f.accessToken, form.Password); err != nil {
		f.logger.Error("password set after activation", slog.String("user_id", f.userID.String()), slog.Any("error", err))
		return fmt.Errorf("invite: set password: %w", err)
	}

	f.phase = PhaseSuccess
	if err := f.client.SignOut(ctx, f.accessToken); err != nil {
		f.logger.Warn("post-activation sign-out", slog.Any("error", err))
	}
	return nil
}
