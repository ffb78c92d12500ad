package staff

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

var recordColumns = []string{
	"id", "full_name", "email", "organisation", "staff_role", "status", "background_check_notes",
	"rejection_reason", "flag_reason", "verified_at", "verified_by", "created_at",
}

// Repository persists staff records.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// List returns one page of records, pending first then newest.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	where := squirrel.And{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"full_name": pattern},
			squirrel.ILike{"email": pattern},
			squirrel.ILike{"organisation": pattern},
		})
	}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"status": filter.Status})
	}

	countQ := psql.Select("COUNT(*)").From("staff_records")
	listQ := psql.Select(recordColumns...).From("staff_records").
		OrderBy("(status = 'pending') DESC", "created_at DESC")
	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}
	sql, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("staff: build count: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("staff: count: %w", err)
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	sql, args, err = listQ.Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("staff: build list: %w", err)
	}
	var out []Record
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("staff: list: %w", err)
	}
	return out, total, nil
}

// Get loads one record.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	sql, args, err := psql.Select(recordColumns...).From("staff_records").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("staff: build get: %w", err)
	}
	var rec Record
	if err := pgxscan.Get(ctx, r.db, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%w: staff record not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("staff: get: %w", err)
	}
	return &rec, nil
}

// Documents lists the uploads of one record, newest first.
func (r *Repository) Documents(ctx context.Context, id uuid.UUID) ([]Document, error) {
	q := psql.Select("id", "document_type", "document_url", "uploaded_at").
		From("staff_documents").
		Where(squirrel.Eq{"staff_id": id}).
		OrderBy("uploaded_at DESC")
	var out []Document
	if err := r.selectInto(ctx, &out, q, "documents"); err != nil {
		return nil, err
	}
	return out, nil
}

// Reviews lists the community reviews of one record, newest first.
func (r *Repository) Reviews(ctx context.Context, id uuid.UUID) ([]Review, error) {
	q := psql.Select("v.id", "p.full_name AS reviewer_name", "v.rating", "v.comment", "v.created_at").
		From("staff_reviews v").
		LeftJoin("profiles p ON p.id = v.reviewer_id").
		Where(squirrel.Eq{"v.staff_id": id}).
		OrderBy("v.created_at DESC")
	var out []Review
	if err := r.selectInto(ctx, &out, q, "reviews"); err != nil {
		return nil, err
	}
	return out, nil
}

// Reports lists complaints filed against one record, newest first.
func (r *Repository) Reports(ctx context.Context, id uuid.UUID) ([]Report, error) {
	q := psql.Select("s.id", "p.full_name AS reporter_name", "s.title", "s.description", "s.severity", "s.status", "s.created_at").
		From("staff_reports s").
		LeftJoin("profiles p ON p.id = s.reporter_id").
		Where(squirrel.Eq{"s.staff_id": id}).
		OrderBy("s.created_at DESC")
	var out []Report
	if err := r.selectInto(ctx, &out, q, "reports"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) selectInto(ctx context.Context, dst any, q squirrel.SelectBuilder, what string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("staff: build %s: %w", what, err)
	}
	if err := pgxscan.Select(ctx, r.db, dst, sql, args...); err != nil {
		return fmt.Errorf("staff: %s: %w", what, err)
	}
	return nil
}

// Counts summarises the queue for the list header.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	sql, args, err := psql.Select(
		"COUNT(*) AS total",
		"COUNT(*) FILTER (WHERE status = 'pending') AS pending",
		"COUNT(*) FILTER (WHERE status = 'verified') AS verified",
		"COUNT(*) FILTER (WHERE status = 'flagged') AS flagged",
	).From("staff_records").ToSql()
	if err != nil {
		return Counts{}, fmt.Errorf("staff: build counts: %w", err)
	}
	var c Counts
	if err := pgxscan.Get(ctx, r.db, &c, sql, args...); err != nil {
		return Counts{}, fmt.Errorf("staff: counts: %w", err)
	}
	return c, nil
}

// Apply records a verification decision.
func (r *Repository) Apply(ctx context.Context, id uuid.UUID, d Decision, by uuid.UUID, at time.Time) error {
	q := psql.Update("staff_records").Set("status", d.Status)
	switch d.Status {
	case StatusVerified:
		q = q.Set("background_check_notes", d.Note).
			Set("verified_at", at).
			Set("verified_by", by).
			Set("rejection_reason", nil).
			Set("flag_reason", nil)
	case StatusRejected:
		q = q.Set("rejection_reason", d.Note)
	case StatusFlagged:
		q = q.Set("flag_reason", d.Note)
	default:
		return fmt.Errorf("%w: unknown staff status %q", httpx.ErrValidation, d.Status)
	}
	sql, args, err := q.Set("updated_at", at).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("staff: build update: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("staff: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: staff record not found", httpx.ErrNotFound)
	}
	return nil
}
