package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/safespora/safespora-admin/internal/platform/db"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

const notAdmin = "NOT EXISTS (SELECT 1 FROM admin_users au WHERE au.email = p.email)"

// Repository reads the rows analytics aggregates.
type Repository interface {
	DashboardStats(ctx context.Context, activeSince time.Time) (DashboardStats, error)
	RecentIncidents(ctx context.Context, limit int) ([]RecentIncident, error)
	IncidentsSince(ctx context.Context, since time.Time) ([]IncidentPoint, error)
	SignupsSince(ctx context.Context, since time.Time) ([]time.Time, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs the analytics repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// DashboardStats counts users, incidents and staff in one round trip.
func (r *PGRepository) DashboardStats(ctx context.Context, activeSince time.Time) (DashboardStats, error) {
	sql, args, err := psql.Select(
		"(SELECT COUNT(*) FROM profiles p WHERE "+notAdmin+") AS total_users",
	).Column(
		squirrel.Expr("(SELECT COUNT(*) FROM profiles p WHERE "+notAdmin+" AND p.last_active_at >= ?) AS active_users", activeSince),
	).Columns(
		"(SELECT COUNT(*) FROM alerts) AS total_incidents",
		"(SELECT COUNT(*) FROM alerts WHERE status = 'active') AS pending_incidents",
		"(SELECT COUNT(*) FROM alerts WHERE status = 'active' AND severity = 'critical') AS critical_incidents",
		"(SELECT COUNT(*) FROM staff_records) AS total_staff",
		"(SELECT COUNT(*) FROM staff_records WHERE status = 'pending') AS pending_verifications",
		"(SELECT COUNT(*) FROM staff_records WHERE status = 'verified') AS verified_staff",
	).ToSql()
	if err != nil {
		return DashboardStats{}, fmt.Errorf("analytics: build stats: %w", err)
	}
	var stats DashboardStats
	if err := pgxscan.Get(ctx, r.db, &stats, sql, args...); err != nil {
		return DashboardStats{}, fmt.Errorf("analytics: stats: %w", err)
	}
	return stats, nil
}

// RecentIncidents returns the newest incidents.
func (r *PGRepository) RecentIncidents(ctx context.Context, limit int) ([]RecentIncident, error) {
	sql, args, err := psql.Select("id::text AS id", "title", "severity", "status", "location", "created_at").
		From("alerts").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("analytics: build recent: %w", err)
	}
	var out []RecentIncident
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("analytics: recent incidents: %w", err)
	}
	return out, nil
}

// IncidentsSince loads the aggregation columns of incidents created at or after since.
func (r *PGRepository) IncidentsSince(ctx context.Context, since time.Time) ([]IncidentPoint, error) {
	sql, args, err := psql.Select("created_at", "category", "severity", "status", "location").
		From("alerts").
		Where(squirrel.GtOrEq{"created_at": since}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("analytics: build incidents: %w", err)
	}
	var out []IncidentPoint
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("analytics: incidents: %w", err)
	}
	return out, nil
}

// SignupsSince returns the creation times of community profiles since since.
func (r *PGRepository) SignupsSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	sql, args, err := psql.Select("p.created_at").
		From("profiles p").
		Where(squirrel.And{squirrel.Expr(notAdmin), squirrel.GtOrEq{"p.created_at": since}}).
		OrderBy("p.created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("analytics: build signups: %w", err)
	}
	var out []time.Time
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("analytics: signups: %w", err)
	}
	return out, nil
}
