package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/safespora/safespora-admin/internal/platform/db"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/shared"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PGProvider keeps identities in the auth_identities table.
type PGProvider struct {
	db   db.DBTX
	cost int
	now  func() time.Time
}

// NewProvider constructs a PostgreSQL identity provider.
func NewProvider(conn db.DBTX) *PGProvider {
	return &PGProvider{db: conn, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (p *PGProvider) WithCost(cost int) *PGProvider {
	p.cost = cost
	return p
}

// CreateIdentity provisions a new identity holding credential.
func (p *PGProvider) CreateIdentity(ctx context.Context, email, credential string) (uuid.UUID, error) {
	if err := checkCredential(credential); err != nil {
		return uuid.Nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), p.cost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("identity: hash credential: %w", err)
	}
	id := uuid.New()
	now := p.now().UTC()
	sql, args, err := psql.Insert("auth_identities").
		Columns("id", "email", "password_hash", "created_at", "updated_at").
		Values(id, shared.NormalizeEmail(email), string(hash), now, now).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("identity: build insert: %w", err)
	}
	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return uuid.Nil, fmt.Errorf("%w: identity already exists", httpx.ErrDuplicate)
		}
		return uuid.Nil, fmt.Errorf("identity: insert: %w", err)
	}
	return id, nil
}

// DeleteIdentity removes an identity. Deleting a missing identity is not an error.
func (p *PGProvider) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	sql, args, err := psql.Delete("auth_identities").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("identity: build delete: %w", err)
	}
	if _, err := p.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("identity: delete: %w", err)
	}
	return nil
}

// FindByEmail loads an identity; missing identities return httpx.ErrNotFound.
func (p *PGProvider) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	sql, args, err := psql.Select("id", "email", "password_hash", "created_at", "updated_at").
		From("auth_identities").
		Where(squirrel.Eq{"email": shared.NormalizeEmail(email)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("identity: build select: %w", err)
	}
	var ident Identity
	if err := pgxscan.Get(ctx, p.db, &ident, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("identity: find by email: %w", err)
	}
	return &ident, nil
}

// Authenticate returns the identity when credential matches. Unknown emails and
// wrong credentials both yield shared.ErrInvalidCredentials after comparable work.
func (p *PGProvider) Authenticate(ctx context.Context, email, credential string) (*Identity, error) {
	ident, err := p.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(credential))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(credential)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return ident, nil
}

// VerifyCredential reports whether credential belongs to email.
func (p *PGProvider) VerifyCredential(ctx context.Context, email, credential string) (bool, error) {
	if _, err := p.Authenticate(ctx, email, credential); err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetCredential replaces the credential of an identity.
func (p *PGProvider) SetCredential(ctx context.Context, id uuid.UUID, credential string) error {
	if err := checkCredential(credential); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), p.cost)
	if err != nil {
		return fmt.Errorf("identity: hash credential: %w", err)
	}
	sql, args, err := psql.Update("auth_identities").
		Set("password_hash", string(hash)).
		Set("updated_at", p.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("identity: build update: %w", err)
	}
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("identity: set credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("safespora-timing-equaliser"), bcrypt.DefaultCost)
	return hash
})

func checkCredential(credential string) error {
	switch {
	case len(credential) < MinCredentialLength:
		return fmt.Errorf("%w: password must be at least %d characters", httpx.ErrValidation, MinCredentialLength)
	case len(credential) > MaxCredentialLength:
		return fmt.Errorf("%w: password must be at most %d bytes", httpx.ErrValidation, MaxCredentialLength)
	}
	return nil
}
