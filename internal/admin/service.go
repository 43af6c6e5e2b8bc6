package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/barangaylink/barangaylink/internal/audit"
	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/revocation"
	"github.com/barangaylink/barangaylink/internal/roles"
	"github.com/barangaylink/barangaylink/internal/saga"
)

// UserRecord is one entry of the merged user listing: a role row joined with
// the identity service's email for the same user id.
type UserRecord struct {
	UserID     string  `json:"user_id"`
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	IsActive   bool    `json:"is_active"`
	FirstName  string  `json:"first_name"`
	MiddleName *string `json:"middle_name"`
	LastName   string  `json:"last_name"`
	InvitedBy  *string `json:"invited_by"`
}

// Service implements the privileged user-management operations.
type Service struct {
	logger   *slog.Logger
	identity identity.AdminClient
	roles    roles.Repository
	sagas    saga.Repository
	revoked  *revocation.Store
	audit    *audit.Logger
	collator *collate.Collator
}

// NewService constructs a Service. sagas, revoked and audit may be nil; the
// corresponding side channels are then skipped.
func NewService(logger *slog.Logger, identityClient identity.AdminClient, repo roles.Repository, sagas saga.Repository, revoked *revocation.Store, auditLogger *audit.Logger) *Service {
	return &Service{
		logger:   logger,
		identity: identityClient,
		roles:    repo,
		sagas:    sagas,
		revoked:  revoked,
		audit:    auditLogger,
		collator: collate.New(language.Und, collate.IgnoreCase),
	}
}

// ListUsers joins role rows with identity emails: two independent fetches
// merged in memory by user id, ordered by last name ascending. Either fetch
// failing fails the whole listing.
func (s *Service) ListUsers(ctx context.Context) ([]UserRecord, error) {
	var (
		rows       []roles.RoleRow
		identities []identity.Identity
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		rows, err = s.roles.List(gctx)
		return err
	})
	group.Go(func() error {
		var err error
		identities, err = s.identity.ListUsers(gctx)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	emails := make(map[uuid.UUID]string, len(identities))
	for _, ident := range identities {
		emails[ident.ID] = ident.Email
	}

	records := make([]UserRecord, 0, len(rows))
	for _, row := range rows {
		rec := UserRecord{
			UserID:     row.UserID.String(),
			Email:      emails[row.UserID],
			Role:       string(row.Role),
			IsActive:   row.IsActive,
			FirstName:  row.FirstName,
			MiddleName: row.MiddleName,
			LastName:   row.LastName,
		}
		if row.InvitedBy != nil {
			inviter := row.InvitedBy.String()
			rec.InvitedBy = &inviter
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if cmp := s.collator.CompareString(records[i].LastName, records[j].LastName); cmp != 0 {
			return cmp < 0
		}
		return s.collator.CompareString(records[i].FirstName, records[j].FirstName) < 0
	})
	return records, nil
}

// Invite creates an identity with staff metadata and upserts the matching
// role row. The two writes are not transactional; the saga record tracks how
// far the sequence got, so a failure after identity creation is visible as a
// pending_role_row record instead of a silent orphan.
func (s *Service) Invite(ctx context.Context, actorID uuid.UUID, email string) error {
	sagaID := s.beginSaga(ctx, saga.KindInvite, saga.StatusPendingIdentity, email, nil)

	metadata := map[string]any{
		"role":       string(roles.RoleStaff),
		"invited_by": actorID.String(),
	}
	ident, err := s.identity.InviteByEmail(ctx, email, metadata)
	if err != nil {
		return fmt.Errorf("invite identity: %w", err)
	}
	s.advanceSaga(ctx, sagaID, saga.StatusPendingRoleRow, &ident.ID)

	row := roles.RoleRow{
		UserID:    ident.ID,
		Role:      roles.RoleStaff,
		IsActive:  false,
		InvitedBy: &actorID,
	}
	if err := s.roles.Upsert(ctx, row); err != nil {
		// Identity exists without a role row now: the orphan-invitation
		// window. The saga record stays at pending_role_row for manual
		// remediation; no automatic rollback.
		return fmt.Errorf("upsert role row: %w", err)
	}
	s.advanceSaga(ctx, sagaID, saga.StatusComplete, nil)

	s.recordAudit(ctx, actorID, "invite", ident.ID.String(), map[string]any{"email": email})
	return nil
}

// ChangeRole updates the role column.
func (s *Service) ChangeRole(ctx context.Context, actorID, userID uuid.UUID, role roles.Role) error {
	if err := s.roles.UpdateRole(ctx, userID, role); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "change_role", userID.String(), map[string]any{"role": string(role)})
	return nil
}

// Deactivate clears is_active and terminates the user's live sessions, both
// at the identity service and in the proxy's revocation set. Repeating the
// call is a no-op.
func (s *Service) Deactivate(ctx context.Context, actorID, userID uuid.UUID) error {
	if err := s.roles.SetActive(ctx, userID, false); err != nil {
		return err
	}
	if s.revoked != nil {
		if err := s.revoked.Revoke(ctx, userID); err != nil {
			s.logger.Warn("revoke sessions", slog.Any("error", err))
		}
	}
	if err := s.identity.SignOutUser(ctx, userID); err != nil {
		// The role row is already inactive; every fresh role check will
		// reject the user even if the service-side sign-out lagged.
		s.logger.Warn("identity sign-out", slog.Any("error", err))
	}
	s.recordAudit(ctx, actorID, "deactivate", userID.String(), nil)
	return nil
}

// Reactivate sets is_active and clears the revocation mark. Idempotent.
func (s *Service) Reactivate(ctx context.Context, actorID, userID uuid.UUID) error {
	if err := s.roles.SetActive(ctx, userID, true); err != nil {
		return err
	}
	if s.revoked != nil {
		if err := s.revoked.Clear(ctx, userID); err != nil {
			s.logger.Warn("clear revocation", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actorID, "reactivate", userID.String(), nil)
	return nil
}

// Activate writes the profile names and flips is_active in one statement.
// This runs with elevated credentials before the password step of the
// accept-invitation flow, so activation persists even if the password step
// disrupts the session afterwards. The saga record opens at
// pending_password; the sweep closes it once the user signs in.
func (s *Service) Activate(ctx context.Context, userID uuid.UUID, email, firstName string, middleName *string, lastName string) error {
	if err := s.roles.Activate(ctx, userID, firstName, middleName, lastName); err != nil {
		return err
	}
	s.beginSaga(ctx, saga.KindActivate, saga.StatusPendingPassword, email, &userID)
	s.recordAudit(ctx, userID, "activate", userID.String(), nil)
	return nil
}

// AuditTimeline reads the trail of privileged mutations, newest first.
func (s *Service) AuditTimeline(ctx context.Context, filters audit.TimelineFilters) (audit.Timeline, error) {
	if s.audit == nil {
		return audit.Timeline{Rows: []audit.TimelineRow{}, Paging: audit.PagingInfo{Page: 1}}, nil
	}
	return s.audit.Timeline(ctx, filters)
}

func (s *Service) beginSaga(ctx context.Context, kind saga.Kind, status saga.Status, email string, userID *uuid.UUID) uuid.UUID {
	if s.sagas == nil {
		return uuid.Nil
	}
	id, err := s.sagas.Begin(ctx, kind, status, email, userID)
	if err != nil {
		s.logger.Warn("saga begin", slog.Any("error", err))
		return uuid.Nil
	}
	return id
}

func (s *Service) advanceSaga(ctx context.Context, id uuid.UUID, status saga.Status, userID *uuid.UUID) {
	if s.sagas == nil || id == uuid.Nil {
		return
	}
	if err := s.sagas.Advance(ctx, id, status, userID); err != nil {
		s.logger.Warn("saga advance", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{ActorID: actorID, Action: action, Entity: "user", EntityID: entityID, Meta: meta}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
