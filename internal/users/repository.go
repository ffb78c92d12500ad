package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/platform/db"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/shared"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var userColumns = []string{
	"p.id", "p.full_name", "p.email", "p.phone", "p.city", "p.is_suspended",
	"p.suspension_reason", "p.suspended_at", "p.suspended_by", "p.last_active_at", "p.created_at",
	"(SELECT COUNT(*) FROM alerts a WHERE a.reporter_id = p.id) AS total_reports",
	"(SELECT COUNT(*) FROM alert_confirmations c WHERE c.user_id = p.id) AS total_confirmations",
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// List returns one page of community users and the total matching count.
// Administrator accounts are excluded.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	where := squirrel.And{squirrel.Expr("NOT EXISTS (SELECT 1 FROM admin_users au WHERE au.email = p.email)")}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"p.full_name": pattern},
			squirrel.ILike{"p.email": pattern},
			squirrel.ILike{"p.phone": pattern},
		})
	}
	switch filter.Status {
	case FilterSuspended:
		where = append(where, squirrel.Eq{"p.is_suspended": true})
	case FilterActive:
		where = append(where, squirrel.Eq{"p.is_suspended": false})
	}

	sql, args, err := psql.Select("COUNT(*)").From("profiles p").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("users: build count: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	sql, args, err = psql.Select(userColumns...).From("profiles p").Where(where).
		OrderBy("p.created_at DESC").
		Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("users: build list: %w", err)
	}
	var out []User
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	return out, total, nil
}

// Get loads one user.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	sql, args, err := psql.Select(userColumns...).From("profiles p").Where(squirrel.Eq{"p.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("users: build get: %w", err)
	}
	var u User
	if err := pgxscan.Get(ctx, r.db, &u, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%w: user not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return &u, nil
}

// Reports lists the newest incidents filed by a user.
func (r *Repository) Reports(ctx context.Context, id uuid.UUID, limit int) ([]Report, error) {
	sql, args, err := psql.Select("id", "title", "category", "severity", "location", "status", "created_at").
		From("alerts").
		Where(squirrel.Eq{"reporter_id": id}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("users: build reports: %w", err)
	}
	var out []Report
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("users: reports: %w", err)
	}
	return out, nil
}

// Confirmations lists the newest incident confirmations made by a user.
func (r *Repository) Confirmations(ctx context.Context, id uuid.UUID, limit int) ([]Confirmation, error) {
	sql, args, err := psql.Select("c.id", "c.alert_id", "a.title AS alert_title", "a.location AS alert_location", "c.created_at").
		From("alert_confirmations c").
		LeftJoin("alerts a ON a.id = c.alert_id").
		Where(squirrel.Eq{"c.user_id": id}).
		OrderBy("c.created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("users: build confirmations: %w", err)
	}
	var out []Confirmation
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("users: confirmations: %w", err)
	}
	return out, nil
}

// SetSuspension suspends the user when reason is non-nil and lifts the
// suspension otherwise.
func (r *Repository) SetSuspension(ctx context.Context, id uuid.UUID, reason *string, by uuid.UUID, at time.Time) error {
	q := psql.Update("profiles").Where(squirrel.Eq{"id": id})
	if reason != nil {
		q = q.Set("is_suspended", true).
			Set("suspension_reason", *reason).
			Set("suspended_at", at).
			Set("suspended_by", by)
	} else {
		q = q.Set("is_suspended", false).
			Set("suspension_reason", nil).
			Set("suspended_at", nil).
			Set("suspended_by", nil)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("users: build update: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("users: update suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user not found", httpx.ErrNotFound)
	}
	return nil
}
