package incidents

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
)

// RepositoryPort defines data access methods for incidents.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Incident, int, error)
	Get(ctx context.Context, id uuid.UUID) (*Incident, error)
	Counts(ctx context.Context) (Counts, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string, by uuid.UUID, at time.Time) error
	SetNote(ctx context.Context, id uuid.UUID, note *string, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditRecorder appends moderation activity.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Invalidator drops cached analytics after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ListResult is one page of incidents.
type ListResult struct {
	Incidents  []Incident
	Counts     Counts
	Pagination shared.Pagination
}

// Service handles incident moderation.
type Service struct {
	repo      RepositoryPort
	audit     AuditRecorder
	analytics Invalidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance. recorder and analytics may be nil.
func NewService(repo RepositoryPort, recorder AuditRecorder, analytics Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: recorder, analytics: analytics, logger: logger, now: time.Now}
}

// List returns one page of incidents with queue counters.
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
	return ListResult{Incidents: items, Counts: counts, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// Get loads one incident.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Incident, error) {
	return s.repo.Get(ctx, id)
}

// Pending lists the newest active incidents for the moderation queue.
func (s *Service) Pending(ctx context.Context, limit int) ([]Incident, error) {
	items, _, err := s.repo.List(ctx, ListFilter{Status: StatusActive, Page: 1, PageSize: limit})
	return items, err
}

// Resolve closes an incident as handled.
func (s *Service) Resolve(ctx context.Context, actor *rbac.Principal, id uuid.UUID) error {
	return s.close(ctx, actor, id, StatusResolved, ActionResolve)
}

// MarkFalseReport closes an incident as a false report.
func (s *Service) MarkFalseReport(ctx context.Context, actor *rbac.Principal, id uuid.UUID) error {
	return s.close(ctx, actor, id, StatusFalseReport, ActionFalseReport)
}

func (s *Service) close(ctx context.Context, actor *rbac.Principal, id uuid.UUID, status, action string) error {
	if !actor.Can(rbac.IncidentsEdit) {
		return httpx.ErrForbidden
	}
	if err := s.repo.SetStatus(ctx, id, status, actor.ID, s.now().UTC()); err != nil {
		return err
	}
	s.after(ctx, actor, action, id, map[string]any{"status": status})
	return nil
}

// AddNote sets the moderator note. A blank note clears it.
func (s *Service) AddNote(ctx context.Context, actor *rbac.Principal, id uuid.UUID, note string) error {
	if !actor.Can(rbac.IncidentsEdit) {
		return httpx.ErrForbidden
	}
	var stored *string
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		stored = &trimmed
	}
	if err := s.repo.SetNote(ctx, id, stored, s.now().UTC()); err != nil {
		return err
	}
	length := 0
	if stored != nil {
		length = len(*stored)
	}
	s.record(ctx, actor, ActionAddNote, id, map[string]any{"note_length": length})
	return nil
}

// Delete removes an incident and its confirmations.
func (s *Service) Delete(ctx context.Context, actor *rbac.Principal, id uuid.UUID) error {
	if !actor.Can(rbac.IncidentsDelete) {
		return httpx.ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.after(ctx, actor, ActionDelete, id, map[string]any{})
	return nil
}

// after records the change and drops cached analytics, which count incidents
// by status.
func (s *Service) after(ctx context.Context, actor *rbac.Principal, action string, id uuid.UUID, details map[string]any) {
	s.record(ctx, actor, action, id, details)
	if s.analytics == nil {
		return
	}
	if err := s.analytics.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate analytics", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor *rbac.Principal, action string, id uuid.UUID, details map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: TargetIncident,
		TargetID:   id.String(),
		Details:    details,
	})
	if err != nil {
		s.logger.Warn("record incident moderation", slog.String("action", action), slog.Any("error", err))
	}
}
