package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TimelineFilters narrows the audit trail query.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  *uuid.UUID
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit trail entry as returned to readers.
type TimelineRow struct {
	ActorID    uuid.UUID `json:"actor_id"`
	Action     string    `json:"action"`
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PagingInfo carries simple page/has-next metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Timeline is a paged slice of the trail plus its paging metadata.
type Timeline struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Timeline reads the audit trail newest-first with optional filters. One row
// beyond the page is fetched to decide HasNext without a count query.
func (l *Logger) Timeline(ctx context.Context, filters TimelineFilters) (Timeline, error) {
	if l == nil {
		return Timeline{}, fmt.Errorf("audit: logger not initialised")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	query, args := buildTimelineQuery(filters, page, pageSize)
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return Timeline{}, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.ActorID, &row.Action, &row.Entity, &row.EntityID, &row.OccurredAt); err != nil {
			return Timeline{}, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Timeline{}, err
	}

	hasNext := len(out) > pageSize
	if hasNext {
		out = out[:pageSize]
	}
	return Timeline{
		Rows:   out,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

func buildTimelineQuery(filters TimelineFilters, page, pageSize int) (string, []any) {
	query := `SELECT actor_id, action, entity, entity_id, occurred_at FROM audit_logs WHERE 1=1`
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if !filters.From.IsZero() {
		query += ` AND occurred_at >= ` + next(filters.From)
	}
	if !filters.To.IsZero() {
		query += ` AND occurred_at < ` + next(filters.To)
	}
	if filters.ActorID != nil {
		query += ` AND actor_id = ` + next(*filters.ActorID)
	}
	if filters.Entity != "" {
		query += ` AND entity = ` + next(filters.Entity)
	}
	if filters.Action != "" {
		query += ` AND action = ` + next(filters.Action)
	}

	query += ` ORDER BY occurred_at DESC`
	query += ` LIMIT ` + next(pageSize+1)
	query += ` OFFSET ` + next((page - 1) * pageSize)
	return query, args
}
