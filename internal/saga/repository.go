package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for saga records.
type Repository interface {
	Begin(ctx context.Context, kind Kind, status Status, email string, userID *uuid.UUID) (uuid.UUID, error)
	Advance(ctx context.Context, id uuid.UUID, status Status, userID *uuid.UUID) error
	ListStalled(ctx context.Context, cutoff time.Time) ([]Record, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Begin inserts a new record and returns its id.
func (r *PGRepository) Begin(ctx context.Context, kind Kind, status Status, email string, userID *uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO saga_records (id, kind, status, email, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		id, kind, status, email, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Advance moves the record to the given status, attaching the user id once
// known.
func (r *PGRepository) Advance(ctx context.Context, id uuid.UUID, status Status, userID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE saga_records
		SET status = $2, user_id = COALESCE($3, user_id), updated_at = NOW()
		WHERE id = $1`,
		id, status, userID)
	return err
}

// ListStalled returns incomplete records last touched before the cutoff.
func (r *PGRepository) ListStalled(ctx context.Context, cutoff time.Time) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, status, email, user_id, created_at, updated_at
		FROM saga_records
		WHERE status <> $1 AND updated_at < $2
		ORDER BY updated_at ASC`,
		StatusComplete, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Status, &rec.Email, &rec.UserID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var _ Repository = (*PGRepository)(nil)
