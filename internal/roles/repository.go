package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangaylink/barangaylink/internal/shared"
	"github.com/google/uuid"
)

// Repository defines persistence operations for role rows.
type Repository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*RoleRow, error)
	List(ctx context.Context) ([]RoleRow, error)
	Upsert(ctx context.Context, row RoleRow) error
	UpdateRole(ctx context.Context, userID uuid.UUID, role Role) error
	SetActive(ctx context.Context, userID uuid.UUID, active bool) error
	Activate(ctx context.Context, userID uuid.UUID, firstName string, middleName *string, lastName string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleRowColumns = `user_id, role, is_active, first_name, middle_name, last_name, invited_by, created_at, updated_at`

// GetByUserID fetches the role row for one identity. A missing row is
// reported as shared.ErrNotFound so callers can treat "no profile yet" apart
// from a real failure.
func (r *PGRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*RoleRow, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleRowColumns+` FROM user_roles WHERE user_id = $1`, userID)
	var rec RoleRow
	if err := row.Scan(&rec.UserID, &rec.Role, &rec.IsActive, &rec.FirstName, &rec.MiddleName, &rec.LastName, &rec.InvitedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List returns all role rows ordered by last name ascending.
func (r *PGRepository) List(ctx context.Context) ([]RoleRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleRowColumns+` FROM user_roles ORDER BY last_name ASC, user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []RoleRow
	for rows.Next() {
		var rec RoleRow
		if err := rows.Scan(&rec.UserID, &rec.Role, &rec.IsActive, &rec.FirstName, &rec.MiddleName, &rec.LastName, &rec.InvitedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert inserts the role row, updating role and inviter on user_id conflict.
// Inviting the same not-yet-accepted identity twice therefore never creates a
// second row.
func (r *PGRepository) Upsert(ctx context.Context, row RoleRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role, is_active, first_name, middle_name, last_name, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, invited_by = EXCLUDED.invited_by, updated_at = NOW()`,
		row.UserID, row.Role, row.IsActive, row.FirstName, row.MiddleName, row.LastName, row.InvitedBy)
	return err
}

// UpdateRole changes the role column for one identity.
func (r *PGRepository) UpdateRole(ctx context.Context, userID uuid.UUID, role Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_roles SET role = $2, updated_at = NOW() WHERE user_id = $1`, userID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetActive flips the activation flag. Repeating the same transition is a
// no-op at the store level, which keeps deactivate/reactivate idempotent.
func (r *PGRepository) SetActive(ctx context.Context, userID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE user_roles SET is_active = $2, updated_at = NOW() WHERE user_id = $1`, userID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Activate writes the profile names and flips is_active in one statement, so
// activation either fully persists or not at all.
func (r *PGRepository) Activate(ctx context.Context, userID uuid.UUID, firstName string, middleName *string, lastName string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles
		SET first_name = $2, middle_name = $3, last_name = $4, is_active = TRUE, updated_at = NOW()
		WHERE user_id = $1`,
		userID, firstName, middleName, lastName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ Repository = (*PGRepository)(nil)
