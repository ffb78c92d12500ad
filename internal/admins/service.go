package admins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/identity"
	"github.com/safespora/safespora-admin/internal/mail"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
)

// IdentityProvider provisions login credentials for administrators.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, credential string) (uuid.UUID, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
}

// AuditRecorder appends activity log entries.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// SessionRevoker drops the live sessions of an administrator.
type SessionRevoker interface {
	RevokeIdentity(ctx context.Context, userID string) (int, error)
}

// Config wires the service dependencies.
type Config struct {
	Repo       Repository
	Identities IdentityProvider
	Audit      AuditRecorder
	Mailer     mail.Mailer
	Templates  *mail.Templates
	Sessions   SessionRevoker
	Logger     *slog.Logger
	InviteTTL  time.Duration
}

// Service is the administrator lifecycle manager. Every mutating call takes
// the acting principal explicitly and re-checks its authority.
type Service struct {
	repo          Repository
	identities    IdentityProvider
	audit         AuditRecorder
	mailer        mail.Mailer
	templates     *mail.Templates
	sessions      SessionRevoker
	logger        *slog.Logger
	validate      *validator.Validate
	inviteTTL     time.Duration
	now           func() time.Time
	newCredential func() (string, error)
}

// NewService constructs the lifecycle manager.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.InviteTTL
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	return &Service{
		repo:          cfg.Repo,
		identities:    cfg.Identities,
		audit:         cfg.Audit,
		mailer:        cfg.Mailer,
		templates:     cfg.Templates,
		sessions:      cfg.Sessions,
		logger:        logger,
		validate:      validator.New(),
		inviteTTL:     ttl,
		now:           time.Now,
		newCredential: identity.GenerateTemporaryCredential,
	}
}

// Invite creates an administrator in four compensable steps: invitation,
// identity, principal, acceptance.
func (s *Service) Invite(ctx context.Context, actor *rbac.Principal, req InviteRequest) (*InviteResult, error) {
	if actor == nil || !actor.Can(rbac.AdminsInvite) {
		return nil, fmt.Errorf("%w: you do not have permission to invite admins", httpx.ErrForbidden)
	}
	req.Email = shared.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	role, _ := rbac.ParseRole(req.Role)
	if role == rbac.RoleSuper && !actor.IsSuper() {
		return nil, fmt.Errorf("%w: only super admins can invite super admins", httpx.ErrForbidden)
	}
	grid := req.Permissions
	if role == rbac.RoleSuper {
		grid = rbac.Grid{}
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrAdminExists
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return nil, err
	}
	if _, err := s.repo.FindPendingInvitation(ctx, req.Email); err == nil {
		return nil, ErrDuplicateInvitation
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return nil, err
	}

	credential, err := s.newCredential()
	if err != nil {
		return nil, fmt.Errorf("admins: generate credential: %w", err)
	}
	now := s.now().UTC()
	inv := &Invitation{
		ID:          uuid.New(),
		Email:       req.Email,
		FullName:    req.FullName,
		Role:        role,
		Permissions: grid,
		InvitedBy:   uuid.NullUUID{UUID: actor.ID, Valid: true},
		Status:      InvitationPending,
		ExpiresAt:   now.Add(s.inviteTTL),
		CreatedAt:   now,
	}
	principal := &rbac.Principal{
		Email:                 req.Email,
		FullName:              req.FullName,
		Role:                  role,
		Permissions:           grid,
		IsActive:              true,
		PasswordResetRequired: true,
		InvitedBy:             inv.InvitedBy,
		CreatedAt:             now,
	}

	sg := newSaga(s.logger.With(slog.String("email", req.Email), slog.String("invitation_id", inv.ID.String())))
	steps := []sagaStep{
		{
			name: "insert invitation",
			run:  func(ctx context.Context) error { return s.repo.InsertInvitation(ctx, inv) },
			undo: func(ctx context.Context) error { return s.repo.DeleteInvitation(ctx, inv.ID) },
		},
		{
			name: "create identity",
			run: func(ctx context.Context) error {
				id, err := s.identities.CreateIdentity(ctx, req.Email, credential)
				if err != nil {
					if errors.Is(err, httpx.ErrDuplicate) {
						return ErrAdminExists
					}
					return fmt.Errorf("admins: create identity: %w", err)
				}
				principal.ID = id
				return nil
			},
			undo: func(ctx context.Context) error { return s.identities.DeleteIdentity(ctx, principal.ID) },
		},
		{
			name: "insert principal",
			run:  func(ctx context.Context) error { return s.repo.Insert(ctx, principal) },
			undo: func(ctx context.Context) error { return s.repo.Delete(ctx, principal.ID) },
		},
		{
			name: "accept invitation",
			run: func(ctx context.Context) error {
				return s.repo.SetInvitationStatus(ctx, inv.ID, InvitationPending, InvitationAccepted, now)
			},
		},
	}
	for _, st := range steps {
		if err := sg.run(ctx, st); err != nil {
			return nil, err
		}
	}
	inv.Status = InvitationAccepted
	inv.AcceptedAt = &now

	s.record(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     ActionInvite,
		TargetType: targetAdmin,
		TargetID:   principal.ID.String(),
		Details: map[string]any{
			"email":         principal.Email,
			"role":          string(role),
			"invitation_id": inv.ID.String(),
			"permissions":   grid.Map(),
		},
	})

	queued := s.notify(ctx, func(t *mail.Templates) (mail.Message, error) {
		return t.AdminInvitation(principal.Email, mail.InvitationData{
			FullName:          principal.FullName,
			Email:             principal.Email,
			Role:              string(role),
			InviterName:       actor.FullName,
			TemporaryPassword: credential,
			ExpiresAt:         inv.ExpiresAt,
		})
	})

	return &InviteResult{Principal: principal, Invitation: inv, TemporaryPassword: credential, EmailQueued: queued}, nil
}

// UpdatePermissions replaces the grid of target. Only super principals may
// edit grids.
func (s *Service) UpdatePermissions(ctx context.Context, actor *rbac.Principal, targetID uuid.UUID, grid rbac.Grid) ([]rbac.PermissionChange, error) {
	if actor == nil || !actor.IsSuper() {
		return nil, fmt.Errorf("%w: only super admins can edit permissions", httpx.ErrForbidden)
	}
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	changes := rbac.Diff(target.Permissions, grid)
	if err := s.repo.Update(ctx, targetID, Patch{Permissions: &grid}); err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     ActionUpdatePermissions,
		TargetType: targetAdmin,
		TargetID:   targetID.String(),
		Details:    map[string]any{"email": target.Email, "changes": changes},
	})

	if len(changes) > 0 {
		lines := make([]mail.PermissionChangeLine, 0, len(changes))
		for _, c := range changes {
			lines = append(lines, mail.PermissionChangeLine{Module: string(c.Module), Action: string(c.Action), OldValue: c.OldValue, NewValue: c.NewValue})
		}
		s.notify(ctx, func(t *mail.Templates) (mail.Message, error) {
			return t.PermissionUpdate(target.Email, mail.PermissionUpdateData{FullName: target.FullName, ChangedBy: actor.FullName, Changes: lines})
		})
	}
	return changes, nil
}

// Activate re-enables target.
func (s *Service) Activate(ctx context.Context, actor *rbac.Principal, targetID uuid.UUID) (*rbac.Principal, error) {
	return s.SetActive(ctx, actor, targetID, true)
}

// Deactivate disables target. Its next guard check fails.
func (s *Service) Deactivate(ctx context.Context, actor *rbac.Principal, targetID uuid.UUID) (*rbac.Principal, error) {
	return s.SetActive(ctx, actor, targetID, false)
}

// SetActive changes target's active flag. Repeating the current state
// succeeds and is still recorded.
func (s *Service) SetActive(ctx context.Context, actor *rbac.Principal, targetID uuid.UUID, active bool) (*rbac.Principal, error) {
	if actor == nil || !actor.Can(rbac.AdminsDelete) {
		return nil, fmt.Errorf("%w: you do not have permission to change admin status", httpx.ErrForbidden)
	}
	if actor.ID == targetID {
		return nil, ErrSelfTarget
	}
	target, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	previous := target.IsActive
	if previous != active {
		if err := s.repo.Update(ctx, targetID, Patch{IsActive: &active}); err != nil {
			return nil, err
		}
		target.IsActive = active
		if !active {
			s.revokeSessions(ctx, targetID)
		}
	}

	action := ActionDeactivate
	if active {
		action = ActionActivate
	}
	s.record(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetAdmin,
		TargetID:   targetID.String(),
		Details:    map[string]any{"email": target.Email, "previous": previous, "is_active": active},
	})
	s.notify(ctx, func(t *mail.Templates) (mail.Message, error) {
		return t.AccountStatus(target.Email, mail.AccountStatusData{FullName: target.FullName, Active: active, ChangedBy: actor.FullName})
	})
	return target, nil
}

// CompletePasswordReset clears the forced-reset flag after the credential
// has been changed.
func (s *Service) CompletePasswordReset(ctx context.Context, p *rbac.Principal) error {
	if p == nil {
		return fmt.Errorf("%w: principal required", httpx.ErrUnauthorized)
	}
	if err := s.repo.Update(ctx, p.ID, Patch{PasswordResetRequired: ptr(false)}); err != nil {
		return err
	}
	p.PasswordResetRequired = false
	s.record(ctx, audit.Entry{
		ActorID:    p.ID,
		Action:     ActionChangePassword,
		TargetType: targetAdmin,
		TargetID:   p.ID.String(),
		Details:    map[string]any{"email": p.Email},
	})
	return nil
}

// RecordLogin stamps last_login_at.
func (s *Service) RecordLogin(ctx context.Context, id uuid.UUID) error {
	return s.repo.Update(ctx, id, Patch{LastLoginAt: ptr(s.now().UTC())})
}

// ActivePrincipal returns the active administrator for email. Unknown and
// inactive administrators both yield httpx.ErrNotFound.
func (s *Service) ActivePrincipal(ctx context.Context, email string) (*rbac.Principal, error) {
	p, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: admin not found", httpx.ErrNotFound)
	}
	return p, nil
}

// ListResult is one page of administrators.
type ListResult struct {
	Admins     []rbac.Principal
	Pagination shared.Pagination
}

// List returns administrators matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	filter.Page, filter.PageSize = shared.NormalizePage(filter.Page, filter.PageSize)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Admins: items, Pagination: shared.NewPagination(filter.Page, filter.PageSize, total)}, nil
}

// Get loads one administrator.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*rbac.Principal, error) {
	return s.repo.FindByID(ctx, id)
}

// ListInvitations returns every invitation, newest first.
func (s *Service) ListInvitations(ctx context.Context) ([]Invitation, error) {
	return s.repo.ListInvitations(ctx)
}

// AcceptedInvitation returns the invitation p joined through. Accounts created
// without one, such as the bootstrap super admin, yield nil.
func (s *Service) AcceptedInvitation(ctx context.Context, p *rbac.Principal) (*AcceptedInvitation, error) {
	inv, err := s.repo.FindAcceptedInvitation(ctx, p.Email)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil, nil
	}
	return inv, err
}

// RevokeInvitation cancels a pending invitation.
func (s *Service) RevokeInvitation(ctx context.Context, actor *rbac.Principal, id uuid.UUID) error {
	if actor == nil || !actor.Can(rbac.AdminsInvite) {
		return fmt.Errorf("%w: you do not have permission to manage invitations", httpx.ErrForbidden)
	}
	inv, err := s.repo.FindInvitation(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != InvitationPending {
		return fmt.Errorf("%w: invitation is %s", httpx.ErrValidation, inv.Status)
	}
	if err := s.repo.SetInvitationStatus(ctx, id, InvitationPending, InvitationRevoked, s.now().UTC()); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     ActionRevokeInvitation,
		TargetType: targetInvitation,
		TargetID:   id.String(),
		Details:    map[string]any{"email": inv.Email},
	})
	return nil
}

// ExpireInvitations flips overdue pending invitations to expired.
func (s *Service) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ExpireInvitations(ctx, now)
}

// BootstrapSuper creates the first super administrator without an inviter.
// The returned credential must be changed at first login.
func (s *Service) BootstrapSuper(ctx context.Context, email, fullName string) (*rbac.Principal, string, error) {
	email = shared.NormalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, "", fmt.Errorf("%w: a valid email is required", httpx.ErrValidation)
	}
	if len(fullName) < 2 {
		return nil, "", fmt.Errorf("%w: full name must be at least 2 characters", httpx.ErrValidation)
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, "", ErrAdminExists
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return nil, "", err
	}
	credential, err := s.newCredential()
	if err != nil {
		return nil, "", fmt.Errorf("admins: generate credential: %w", err)
	}
	principal := &rbac.Principal{
		Email:                 email,
		FullName:              fullName,
		Role:                  rbac.RoleSuper,
		IsActive:              true,
		PasswordResetRequired: true,
		CreatedAt:             s.now().UTC(),
	}
	sg := newSaga(s.logger.With(slog.String("email", email)))
	steps := []sagaStep{
		{
			name: "create identity",
			run: func(ctx context.Context) error {
				id, err := s.identities.CreateIdentity(ctx, email, credential)
				if err != nil {
					return fmt.Errorf("admins: create identity: %w", err)
				}
				principal.ID = id
				return nil
			},
			undo: func(ctx context.Context) error { return s.identities.DeleteIdentity(ctx, principal.ID) },
		},
		{
			name: "insert principal",
			run:  func(ctx context.Context) error { return s.repo.Insert(ctx, principal) },
		},
	}
	for _, st := range steps {
		if err := sg.run(ctx, st); err != nil {
			return nil, "", err
		}
	}
	s.record(ctx, audit.Entry{
		Action:     ActionBootstrap,
		TargetType: targetAdmin,
		TargetID:   principal.ID.String(),
		Details:    map[string]any{"email": email},
	})
	return principal, credential, nil
}

func (s *Service) revokeSessions(ctx context.Context, id uuid.UUID) {
	if s.sessions == nil {
		return
	}
	n, err := s.sessions.RevokeIdentity(ctx, id.String())
	if err != nil {
		s.logger.Warn("revoke admin sessions", slog.String("admin_id", id.String()), slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("admin sessions revoked", slog.String("admin_id", id.String()), slog.Int("count", n))
	}
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, e); err != nil {
		s.logger.Warn("record admin activity", slog.String("action", e.Action), slog.String("target_id", e.TargetID), slog.Any("error", err))
	}
}

// notify renders and sends one email. Failures are logged and reported as
// false; they never fail the calling operation.
func (s *Service) notify(ctx context.Context, build func(*mail.Templates) (mail.Message, error)) bool {
	if s.mailer == nil || s.templates == nil {
		return false
	}
	msg, err := build(s.templates)
	if err != nil {
		s.logger.Warn("render admin email", slog.Any("error", err))
		return false
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("send admin email", slog.String("template", msg.Template), slog.Any("error", err))
		return false
	}
	return true
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Field() {
		case "Email":
			return fmt.Errorf("%w: a valid email is required", httpx.ErrValidation)
		case "FullName":
			return fmt.Errorf("%w: full name must be between 2 and 120 characters", httpx.ErrValidation)
		case "Role":
			return fmt.Errorf("%w: role must be standard or super", httpx.ErrValidation)
		}
		return fmt.Errorf("%w: %s is invalid", httpx.ErrValidation, strings.ToLower(fe.Field()))
	}
	return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
}

var _ rbac.PrincipalSource = (*Service)(nil)
