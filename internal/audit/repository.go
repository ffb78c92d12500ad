package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/platform/db"
)

// Repository reads the activity log.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL activity log reader.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// TimelineWindow returns one window of the timeline, newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	q := timelineQuery(filters).Offset(uint64(offset)).Limit(uint64(limit))
	return r.query(ctx, q)
}

// TimelineAll returns the whole filtered timeline, newest first.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	return r.query(ctx, timelineQuery(filters))
}

func (r *PGRepository) query(ctx context.Context, q squirrel.SelectBuilder) ([]TimelineRow, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("audit: build timeline: %w", err)
	}
	var rows []TimelineRow
	if err := pgxscan.Select(ctx, r.db, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	return rows, nil
}

func timelineQuery(filters TimelineFilters) squirrel.SelectBuilder {
	q := psql.Select(
		"l.created_at",
		"COALESCE(a.full_name, 'system') AS actor_name",
		"COALESCE(a.email, '') AS actor_email",
		"l.action",
		"l.target_type",
		"l.target_id",
		"l.details",
		"COALESCE(l.ip_address, '') AS ip_address",
	).
		From("admin_activity_logs l").
		LeftJoin("admin_users a ON a.id = l.admin_id").
		OrderBy("l.created_at DESC", "l.id DESC")
	if !filters.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"l.created_at": filters.From})
	}
	if !filters.To.IsZero() {
		q = q.Where(squirrel.Lt{"l.created_at": filters.To.AddDate(0, 0, 1)})
	}
	if filters.AdminID != uuid.Nil {
		q = q.Where(squirrel.Eq{"l.admin_id": filters.AdminID})
	}
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		pattern := "%" + actor + "%"
		q = q.Where(squirrel.Or{squirrel.ILike{"a.email": pattern}, squirrel.ILike{"a.full_name": pattern}})
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		q = q.Where(squirrel.Eq{"l.action": v})
	}
	if v := strings.TrimSpace(filters.TargetType); v != "" {
		q = q.Where(squirrel.Eq{"l.target_type": v})
	}
	return q
}

var _ Repository = (*PGRepository)(nil)
