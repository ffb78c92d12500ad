package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	SetSuspension(ctx context.Context, id uuid.UUID, reason *string, by uuid.UUID, at time.Time) error
	Reports(ctx context.Context, id uuid.UUID, limit int) ([]Report, error)
	Confirmations(ctx context.Context, id uuid.UUID, limit int) ([]Confirmation, error)
}

// detailLimit caps the activity shown on a user's page.
const detailLimit = 10

// AuditRecorder appends moderation activity.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// ListResult is one page of users.
type ListResult struct {
	Users      []User
	Pagination shared.Pagination
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: recorder, logger: logger, now: time.Now}
}

// List returns one page of users.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, perPage
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Users: items, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// Detail loads one user with their latest reports and confirmations.
func (s *Service) Detail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{User: *u}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Reports, err = s.repo.Reports(gctx, id, detailLimit)
		return err
	})
	g.Go(func() (err error) {
		d.Confirmations, err = s.repo.Confirmations(gctx, id, detailLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// Suspend blocks a user from the platform.
func (s *Service) Suspend(ctx context.Context, actor *rbac.Principal, id uuid.UUID, reason string) error {
	if !actor.Can(rbac.UsersEdit) {
		return httpx.ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: a suspension reason is required", httpx.ErrValidation)
	}
	if err := s.repo.SetSuspension(ctx, id, &reason, actor.ID, s.now().UTC()); err != nil {
		return err
	}
	s.record(ctx, actor, ActionSuspend, id, map[string]any{"reason": reason})
	return nil
}

// Unsuspend lifts a suspension.
func (s *Service) Unsuspend(ctx context.Context, actor *rbac.Principal, id uuid.UUID) error {
	if !actor.Can(rbac.UsersEdit) {
		return httpx.ErrForbidden
	}
	if err := s.repo.SetSuspension(ctx, id, nil, actor.ID, s.now().UTC()); err != nil {
		return err
	}
	s.record(ctx, actor, ActionUnsuspend, id, map[string]any{})
	return nil
}

func (s *Service) record(ctx context.Context, actor *rbac.Principal, action string, id uuid.UUID, details map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: TargetUser,
		TargetID:   id.String(),
		Details:    details,
	})
	if err != nil {
		s.logger.Warn("record user moderation", slog.String("action", action), slog.Any("error", err))
	}
}
