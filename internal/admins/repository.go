package admins

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
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var principalColumns = []string{
	"id", "email", "full_name", "role", "permissions", "is_active",
	"password_reset_required", "invited_by", "created_at", "last_login_at",
}

var invitationColumns = []string{
	"id", "email", "full_name", "role", "permissions", "invited_by",
	"status", "expires_at", "created_at", "accepted_at",
}

// Repository persists administrators and their invitations.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*rbac.Principal, error)
	FindByID(ctx context.Context, id uuid.UUID) (*rbac.Principal, error)
	List(ctx context.Context, filter ListFilter) ([]rbac.Principal, int, error)
	Insert(ctx context.Context, p *rbac.Principal) error
	Update(ctx context.Context, id uuid.UUID, patch Patch) error
	Delete(ctx context.Context, id uuid.UUID) error

	InsertInvitation(ctx context.Context, inv *Invitation) error
	FindInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error)
	FindPendingInvitation(ctx context.Context, email string) (*Invitation, error)
	SetInvitationStatus(ctx context.Context, id uuid.UUID, from, to InvitationStatus, at time.Time) error
	DeleteInvitation(ctx context.Context, id uuid.UUID) error
	ListInvitations(ctx context.Context) ([]Invitation, error)
	FindAcceptedInvitation(ctx context.Context, email string) (*AcceptedInvitation, error)
	ExpireInvitations(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs the PostgreSQL administrator store.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// FindByEmail loads the administrator with email, active or not.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*rbac.Principal, error) {
	return r.getPrincipal(ctx, squirrel.Eq{"email": shared.NormalizeEmail(email)})
}

// FindByID loads one administrator.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*rbac.Principal, error) {
	return r.getPrincipal(ctx, squirrel.Eq{"id": id})
}

func (r *PGRepository) getPrincipal(ctx context.Context, where squirrel.Sqlizer) (*rbac.Principal, error) {
	sql, args, err := psql.Select(principalColumns...).From("admin_users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("admins: build select: %w", err)
	}
	var p rbac.Principal
	if err := pgxscan.Get(ctx, r.db, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%w: admin not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("admins: select: %w", err)
	}
	return &p, nil
}

// List returns one page of administrators and the total matching count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]rbac.Principal, int, error) {
	where := squirrel.And{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, squirrel.Or{squirrel.ILike{"email": pattern}, squirrel.ILike{"full_name": pattern}})
	}
	if filter.Role != "" {
		where = append(where, squirrel.Eq{"role": string(filter.Role)})
	}
	switch filter.Status {
	case StatusActive:
		where = append(where, squirrel.Eq{"is_active": true})
	case StatusInactive:
		where = append(where, squirrel.Eq{"is_active": false})
	}

	countQ := psql.Select("COUNT(*)").From("admin_users")
	listQ := psql.Select(principalColumns...).From("admin_users").OrderBy("created_at DESC", "id")
	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}

	sql, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("admins: build count: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("admins: count: %w", err)
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	sql, args, err = listQ.Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("admins: build list: %w", err)
	}
	var out []rbac.Principal
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("admins: list: %w", err)
	}
	return out, total, nil
}

// Insert stores a new administrator.
func (r *PGRepository) Insert(ctx context.Context, p *rbac.Principal) error {
	sql, args, err := psql.Insert("admin_users").
		Columns("id", "email", "full_name", "role", "permissions", "is_active", "password_reset_required", "invited_by", "created_at").
		Values(p.ID, shared.NormalizeEmail(p.Email), p.FullName, string(p.Role), p.Permissions, p.IsActive, p.PasswordResetRequired, p.InvitedBy, p.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("admins: build insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAdminExists
		}
		return fmt.Errorf("admins: insert: %w", err)
	}
	return nil
}

// Update applies the non-nil fields of patch.
func (r *PGRepository) Update(ctx context.Context, id uuid.UUID, patch Patch) error {
	if patch.empty() {
		return nil
	}
	q := psql.Update("admin_users").Where(squirrel.Eq{"id": id})
	if patch.Permissions != nil {
		q = q.Set("permissions", *patch.Permissions)
	}
	if patch.IsActive != nil {
		q = q.Set("is_active", *patch.IsActive)
	}
	if patch.PasswordResetRequired != nil {
		q = q.Set("password_reset_required", *patch.PasswordResetRequired)
	}
	if patch.LastLoginAt != nil {
		q = q.Set("last_login_at", patch.LastLoginAt.UTC())
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("admins: build update: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("admins: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: admin not found", httpx.ErrNotFound)
	}
	return nil
}

// Delete removes an administrator row. Only invite compensation uses it.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	sql, args, err := psql.Delete("admin_users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("admins: build delete: %w", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("admins: delete: %w", err)
	}
	return nil
}

// InsertInvitation stores a new invitation. A second pending invitation for
// the same email violates the partial unique index.
func (r *PGRepository) InsertInvitation(ctx context.Context, inv *Invitation) error {
	sql, args, err := psql.Insert("admin_invitations").
		Columns("id", "email", "full_name", "role", "permissions", "invited_by", "status", "expires_at", "created_at").
		Values(inv.ID, shared.NormalizeEmail(inv.Email), inv.FullName, string(inv.Role), inv.Permissions, inv.InvitedBy, string(inv.Status), inv.ExpiresAt, inv.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("admins: build invitation insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateInvitation
		}
		return fmt.Errorf("admins: insert invitation: %w", err)
	}
	return nil
}

// FindInvitation loads one invitation.
func (r *PGRepository) FindInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	return r.getInvitation(ctx, squirrel.Eq{"id": id})
}

// FindPendingInvitation loads the pending invitation for email.
func (r *PGRepository) FindPendingInvitation(ctx context.Context, email string) (*Invitation, error) {
	return r.getInvitation(ctx, squirrel.Eq{"email": shared.NormalizeEmail(email), "status": string(InvitationPending)})
}

func (r *PGRepository) getInvitation(ctx context.Context, where squirrel.Sqlizer) (*Invitation, error) {
	sql, args, err := psql.Select(invitationColumns...).From("admin_invitations").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("admins: build invitation select: %w", err)
	}
	var inv Invitation
	if err := pgxscan.Get(ctx, r.db, &inv, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%w: invitation not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("admins: select invitation: %w", err)
	}
	return &inv, nil
}

// SetInvitationStatus moves an invitation from one status to another. The
// update only applies when the current status is from.
func (r *PGRepository) SetInvitationStatus(ctx context.Context, id uuid.UUID, from, to InvitationStatus, at time.Time) error {
	q := psql.Update("admin_invitations").
		Set("status", string(to)).
		Where(squirrel.Eq{"id": id, "status": string(from)})
	if to == InvitationAccepted {
		q = q.Set("accepted_at", at.UTC())
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("admins: build invitation update: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("admins: update invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no %s invitation %s", httpx.ErrNotFound, from, id)
	}
	return nil
}

// DeleteInvitation removes an invitation. Only invite compensation uses it.
func (r *PGRepository) DeleteInvitation(ctx context.Context, id uuid.UUID) error {
	sql, args, err := psql.Delete("admin_invitations").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("admins: build invitation delete: %w", err)
	}
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("admins: delete invitation: %w", err)
	}
	return nil
}

// ListInvitations returns every invitation, newest first.
func (r *PGRepository) ListInvitations(ctx context.Context) ([]Invitation, error) {
	sql, args, err := psql.Select(invitationColumns...).From("admin_invitations").OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("admins: build invitation list: %w", err)
	}
	var out []Invitation
	if err := pgxscan.Select(ctx, r.db, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("admins: list invitations: %w", err)
	}
	return out, nil
}

// FindAcceptedInvitation loads the newest accepted invitation for email with
// the inviter's address.
func (r *PGRepository) FindAcceptedInvitation(ctx context.Context, email string) (*AcceptedInvitation, error) {
	cols := make([]string, 0, len(invitationColumns)+1)
	for _, c := range invitationColumns {
		cols = append(cols, "i."+c)
	}
	sql, args, err := psql.Select(cols...).
		Column("a.email AS inviter_email").
		From("admin_invitations i").
		LeftJoin("admin_users a ON a.id = i.invited_by").
		Where(squirrel.Eq{"i.email": shared.NormalizeEmail(email), "i.status": string(InvitationAccepted)}).
		OrderBy("i.accepted_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("admins: build accepted invitation: %w", err)
	}
	var inv AcceptedInvitation
	if err := pgxscan.Get(ctx, r.db, &inv, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%w: invitation not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("admins: select accepted invitation: %w", err)
	}
	return &inv, nil
}

// ExpireInvitations marks pending invitations past their deadline as expired.
func (r *PGRepository) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	sql, args, err := psql.Update("admin_invitations").
		Set("status", string(InvitationExpired)).
		Where(squirrel.Eq{"status": string(InvitationPending)}).
		Where(squirrel.Lt{"expires_at": now.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("admins: build expire: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("admins: expire invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
