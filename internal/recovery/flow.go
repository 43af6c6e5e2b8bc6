package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/barangaylink/barangaylink/internal/identity"
)

// Phase is the flow's current state.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseForm
	PhaseSuccess
	PhaseInvalidLink
)

// ErrNotInForm is returned when Submit is called outside the Form phase.
var ErrNotInForm = errors.New("recovery: flow is not accepting a submission")

// Policy violations are user-facing.
var (
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordNeedsDigit = errors.New("password must contain a digit")
	ErrPasswordNeedsUpper = errors.New("password must contain an uppercase letter")
	ErrPasswordMismatch   = errors.New("password confirmation does not match")
)

// Flow is one password-recovery attempt.
type Flow struct {
	logger *slog.Logger
	client identity.Client

	phase       Phase
	accessToken string
}

// NewFlow constructs a Flow in the Loading phase.
func NewFlow(logger *slog.Logger, client identity.Client) *Flow {
	return &Flow{logger: logger, client: client, phase: PhaseLoading}
}

// Phase returns the flow's current state.
func (f *Flow) Phase() Phase {
	return f.phase
}

// Start waits for the recovery event with a fixed deadline. The Form phase
// is entered only when the event fires; a link that never produces it lands
// in InvalidLink.
func (f *Flow) Start(ctx context.Context, events <-chan identity.Event, timeout time.Duration) Phase {
	outcome, sess, err := Await(ctx, events, timeout)
	if err != nil || outcome == TimedOut {
		f.phase = PhaseInvalidLink
		return f.phase
	}
	f.accessToken = sess.AccessToken
	f.phase = PhaseForm
	return f.phase
}

// Submit checks the password policy and updates the credential. A service
// failure keeps the flow in Form with the error surfaced to the caller.
func (f *Flow) Submit(ctx context.Context, password, confirm string) error {
	if f.phase != PhaseForm {
		return ErrNotInForm
	}
	if err := CheckPolicy(password, confirm); err != nil {
		return err
	}
	if err := f.client.UpdatePassword(ctx, f.accessToken, password); err != nil {
		f.logger.Warn("recovery password update", slog.Any("error", err))
		return fmt.Errorf("recovery: %w", err)
	}
	f.phase = PhaseSuccess
	return nil
}

// CheckPolicy validates the recovery password rules: at least 8 characters,
// one digit, one uppercase letter, and an exact confirmation match.
func CheckPolicy(password, confirm string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	var hasDigit, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	if !hasDigit {
		return ErrPasswordNeedsDigit
	}
	if !hasUpper {
		return ErrPasswordNeedsUpper
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
