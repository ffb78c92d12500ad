package waitlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/safespora/safespora-admin/internal/platform/db"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/shared"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var entryColumns = []string{"id", "name", "email", "city", "position", "invited", "invited_at", "created_at"}

// ErrAlreadyJoined reports an email already on the list.
var ErrAlreadyJoined = fmt.Errorf("%w: this email is already on the waitlist", httpx.ErrDuplicate)

// ErrBusy reports that the position lock could not be taken in time.
var ErrBusy = fmt.Errorf("%w: the waitlist is busy, try again shortly", httpx.ErrUnavailable)

const positionLockTimeout = 3 * time.Second

// Conn is the database surface the repository needs.
type Conn interface {
	db.DBTX
	db.TxStarter
}

// Repository persists waitlist entries.
type Repository struct {
	conn Conn
}

// NewRepository constructs a repository.
func NewRepository(conn Conn) *Repository {
	return &Repository{conn: conn}
}

// Insert appends an entry at position count+1. The count and insert share a
// transaction; the unique email index rejects duplicates.
func (r *Repository) Insert(ctx context.Context, e *Entry) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "LOCK TABLE waitlist IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			if db.IsLockTimeout(err) {
				return ErrBusy
			}
			return fmt.Errorf("waitlist: lock: %w", err)
		}
		var count int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM waitlist").Scan(&count); err != nil {
			return fmt.Errorf("waitlist: count: %w", err)
		}
		e.Position = count + 1
		sql, args, err := psql.Insert("waitlist").
			Columns("name", "email", "city", "position", "created_at").
			Values(e.Name, e.Email, e.City, e.Position, e.CreatedAt).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("waitlist: build insert: %w", err)
		}
		if err := tx.QueryRow(ctx, sql, args...).Scan(&e.ID); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyJoined
			}
			return fmt.Errorf("waitlist: insert: %w", err)
		}
		return nil
	}, db.LockTimeout(positionLockTimeout))
}

// List returns one page of entries by position.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	where := squirrel.And{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"email": pattern},
			squirrel.ILike{"city": pattern},
		})
	}
	if filter.Invited != nil {
		where = append(where, squirrel.Eq{"invited": *filter.Invited})
	}
	countQ := psql.Select("COUNT(*)").From("waitlist")
	listQ := psql.Select(entryColumns...).From("waitlist").OrderBy("position ASC")
	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}
	sql, args, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("waitlist: build count: %w", err)
	}
	var total int
	if err := r.conn.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("waitlist: count: %w", err)
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	sql, args, err = listQ.Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("waitlist: build list: %w", err)
	}
	var out []Entry
	if err := pgxscan.Select(ctx, r.conn, &out, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("waitlist: list: %w", err)
	}
	return out, total, nil
}

// Stats counts signups and invited signups.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := pgxscan.Get(ctx, r.conn, &s, "SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE invited) AS invited FROM waitlist")
	if err != nil {
		return Stats{}, fmt.Errorf("waitlist: stats: %w", err)
	}
	return s, nil
}

// FindByEmail loads the entry for a normalised email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Entry, error) {
	sql, args, err := psql.Select(entryColumns...).From("waitlist").Where(squirrel.Eq{"email": email}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("waitlist: build find: %w", err)
	}
	var e Entry
	if err := pgxscan.Get(ctx, r.conn, &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, fmt.Errorf("%w: waitlist entry not found", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("waitlist: find: %w", err)
	}
	return &e, nil
}

// MarkInvited flags an entry as having received the launch announcement.
func (r *Repository) MarkInvited(ctx context.Context, email string, at time.Time) error {
	sql, args, err := psql.Update("waitlist").
		Set("invited", true).
		Set("invited_at", at).
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("waitlist: build mark invited: %w", err)
	}
	if _, err := r.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("waitlist: mark invited: %w", err)
	}
	return nil
}
