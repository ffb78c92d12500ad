package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/identity"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
)

// ErrCurrentPasswordIncorrect rejects a password change with a wrong current password.
var ErrCurrentPasswordIncorrect = fmt.Errorf("%w: current password is incorrect", httpx.ErrValidation)

// Credentials checks and replaces login credentials.
type Credentials interface {
	Authenticate(ctx context.Context, email, credential string) (*identity.Identity, error)
	VerifyCredential(ctx context.Context, email, credential string) (bool, error)
	SetCredential(ctx context.Context, id uuid.UUID, credential string) error
}

// Principals resolves administrators and clears the forced-reset flag.
type Principals interface {
	ActivePrincipal(ctx context.Context, email string) (*rbac.Principal, error)
	CompletePasswordReset(ctx context.Context, p *rbac.Principal) error
}

// Service wraps authentication business rules.
type Service struct {
	credentials Credentials
	principals  Principals
}

// NewService constructs a new Service.
func NewService(credentials Credentials, principals Principals) *Service {
	return &Service{credentials: credentials, principals: principals}
}

// Login validates email/password credentials and returns the active
// administrator. Wrong passwords, unknown emails and deactivated accounts all
// yield shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*rbac.Principal, error) {
	ident, err := s.credentials.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: authenticate: %w", err)
	}
	p, err := s.principals.ActivePrincipal(ctx, ident.Email)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: load principal: %w", err)
	}
	return p, nil
}

// ResetPassword sets a new credential for a principal that must change its
// temporary one.
func (s *Service) ResetPassword(ctx context.Context, p *rbac.Principal, password string) error {
	if err := s.credentials.SetCredential(ctx, p.ID, password); err != nil {
		return err
	}
	return s.principals.CompletePasswordReset(ctx, p)
}

// ChangePassword replaces the credential after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, p *rbac.Principal, current, next string) error {
	ok, err := s.credentials.VerifyCredential(ctx, p.Email, current)
	if err != nil {
		return fmt.Errorf("auth: verify credential: %w", err)
	}
	if !ok {
		return ErrCurrentPasswordIncorrect
	}
	if current == next {
		return fmt.Errorf("%w: new password must differ from the current one", httpx.ErrValidation)
	}
	return s.ResetPassword(ctx, p, next)
}
