package staff

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

// RepositoryPort defines data access methods for staff records.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
	Counts(ctx context.Context) (Counts, error)
	Apply(ctx context.Context, id uuid.UUID, d Decision, by uuid.UUID, at time.Time) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	Documents(ctx context.Context, id uuid.UUID) ([]Document, error)
	Reviews(ctx context.Context, id uuid.UUID) ([]Review, error)
	Reports(ctx context.Context, id uuid.UUID) ([]Report, error)
}

// AuditRecorder appends verification activity.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// ListResult is one page of staff records.
type ListResult struct {
	Records    []Record
	Counts     Counts
	Pagination shared.Pagination
}

// Service handles staff verification.
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

// List returns one page of records with queue counters.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, perPage
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	counts, err := s.repo.Counts(ctx)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Records: items, Counts: counts, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// ByStatus lists the newest records in one status for the moderation queue.
func (s *Service) ByStatus(ctx context.Context, status string, limit int) ([]Record, error) {
	items, _, err := s.repo.List(ctx, ListFilter{Status: status, Page: 1, PageSize: limit})
	return items, err
}

// Detail loads one record with its documents, reviews and reports.
func (s *Service) Detail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Record: *rec}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Documents, err = s.repo.Documents(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		d.Reviews, err = s.repo.Reviews(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		d.Reports, err = s.repo.Reports(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// Verify approves a record with optional background check notes.
func (s *Service) Verify(ctx context.Context, actor *rbac.Principal, id uuid.UUID, notes string) error {
	var stored *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		stored = &trimmed
	}
	return s.decide(ctx, actor, id, Decision{Status: StatusVerified, Note: stored}, ActionVerify, map[string]any{
		"has_notes": stored != nil,
	})
}

// Reject declines a record. The reason is required.
func (s *Service) Reject(ctx context.Context, actor *rbac.Principal, id uuid.UUID, reason string) error {
	return s.decideWithReason(ctx, actor, id, StatusRejected, ActionReject, reason)
}

// Flag marks a record for follow-up. The reason is required.
func (s *Service) Flag(ctx context.Context, actor *rbac.Principal, id uuid.UUID, reason string) error {
	return s.decideWithReason(ctx, actor, id, StatusFlagged, ActionFlag, reason)
}

func (s *Service) decideWithReason(ctx context.Context, actor *rbac.Principal, id uuid.UUID, status, action, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: reason is required", httpx.ErrValidation)
	}
	if len(reason) > maxReasonChars {
		return fmt.Errorf("%w: reason is too long", httpx.ErrValidation)
	}
	return s.decide(ctx, actor, id, Decision{Status: status, Note: &reason}, action, map[string]any{"reason": reason})
}

func (s *Service) decide(ctx context.Context, actor *rbac.Principal, id uuid.UUID, d Decision, action string, details map[string]any) error {
	if !actor.Can(rbac.StaffEdit) {
		return httpx.ErrForbidden
	}
	if err := s.repo.Apply(ctx, id, d, actor.ID, s.now().UTC()); err != nil {
		return err
	}
	if s.audit == nil {
		return nil
	}
	err := s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: TargetStaff,
		TargetID:   id.String(),
		Details:    details,
	})
	if err != nil {
		s.logger.Warn("record staff decision", slog.String("action", action), slog.Any("error", err))
	}
	return nil
}
