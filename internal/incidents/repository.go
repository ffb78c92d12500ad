package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/safespora/safespora-admin/internal/platform/db"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/shared"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var incidentColumns = []string{
	"a.id", "a.title", "a.description", "a.category", "a.severity", "a.status", "a.location",
	"a.admin_notes", "COALESCE(p.full_name, '') AS reporter_name",
	"(SELECT COUNT(*) FROM alert_confirmations c WHERE c.alert_id = a.id) AS confirmations",
	"a.resolved_at", "a.resolved_by", "a.created_at",
}

// Conn is the database surface the repository needs.
type Conn interface {
	db.DBTX
	db.TxStarter
}

// Repository persists incidents.
type Repository struct {
	conn Conn
}

// NewRepository constructs a repository.
func NewRepository(conn Conn) *Repository {
	return &Repository{conn: conn}
}

func selectIncidents() squirrel.SelectBuilder {
	return psql.Select(incidentColumns...).
		From("alerts a").
		LeftJoin("profiles p ON p.id = a.reporter_id")
}

// List returns one page of incidents, newest first, and the matching total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Incident, int, error) {
	where := squirrel.And{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"a.title": pattern},
			squirrel.ILike{"a.location": pattern},
		})
	}
	for _, f := range [][2]string{{"a.status", filter.Status}, {"a.severity", filter.Severity}, {"a.category", filter.Category}} {
		if f[1] != "" {
			where = append(where, squirrel.Eq{f[0]: f[1]})
		}
	}

	countQ := psql.Select("COUNT(*)").From("alerts a")
	listQ := selectIncidents().OrderBy("a.created_at DESC")
	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}
	sql, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("incidents: build count: %w", err)
	}
	var total int
	if err := r.conn.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("incidents: count: %w", err)
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	sql, args, err = listQ.Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("incidents: build list: %w", err)
	}
	var out []Incident
	if err := pgxscan.Select(ctx, r.conn, &out, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("incidents: list: %w", err)
	}
	return out, total, nil
}

// Get loads one incident.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Incident, error) {
	sql, args, err := selectIncidents().Where(squirrel.Eq{"a.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("incidents: build get: %w", err)
	}
	var inc Incident
	if err := pgxscan.Get(ctx, r.conn, &inc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%w: incident not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("incidents: get: %w", err)
	}
	return &inc, nil
}

// Counts summarises the queue for the list header.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	sql, args, err := psql.Select(
		"COUNT(*) AS total",
		"COUNT(*) FILTER (WHERE status = 'active') AS active",
		"COUNT(*) FILTER (WHERE status = 'resolved') AS resolved",
		"COUNT(*) FILTER (WHERE status = 'active' AND severity = 'critical') AS critical",
	).From("alerts").ToSql()
	if err != nil {
		return Counts{}, fmt.Errorf("incidents: build counts: %w", err)
	}
	var c Counts
	if err := pgxscan.Get(ctx, r.conn, &c, sql, args...); err != nil {
		return Counts{}, fmt.Errorf("incidents: counts: %w", err)
	}
	return c, nil
}

// SetStatus closes an incident as resolved or false report.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string, by uuid.UUID, at time.Time) error {
	return r.update(ctx, psql.Update("alerts").
		Set("status", status).
		Set("resolved_at", at).
		Set("resolved_by", by).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}))
}

// SetNote replaces the moderator note; nil clears it.
func (r *Repository) SetNote(ctx context.Context, id uuid.UUID, note *string, at time.Time) error {
	return r.update(ctx, psql.Update("alerts").
		Set("admin_notes", note).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}))
}

// Delete removes an incident and its confirmations atomically.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		sql, args, err := psql.Delete("alert_confirmations").Where(squirrel.Eq{"alert_id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("incidents: build delete confirmations: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("incidents: delete confirmations: %w", err)
		}
		sql, args, err = psql.Delete("alerts").Where(squirrel.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("incidents: build delete: %w", err)
		}
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("incidents: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: incident not found", httpx.ErrNotFound)
		}
		return nil
	})
}

func (r *Repository) update(ctx context.Context, q squirrel.UpdateBuilder) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("incidents: build update: %w", err)
	}
	tag, err := r.conn.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("incidents: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: incident not found", httpx.ErrNotFound)
	}
	return nil
}
