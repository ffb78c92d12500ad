package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/mail"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
)

// RepositoryPort defines data access methods for the waitlist.
type RepositoryPort interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter ListFilter) ([]Entry, int, error)
	Stats(ctx context.Context) (Stats, error)
	FindByEmail(ctx context.Context, email string) (*Entry, error)
	MarkInvited(ctx context.Context, email string, at time.Time) error
}

// AuditRecorder appends admin activity.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Config wires the service dependencies.
type Config struct {
	Repo                RepositoryPort
	Audit               AuditRecorder
	Mailer              mail.Mailer
	Templates           *mail.Templates
	Logger              *slog.Logger
	DefaultDownloadLink string
}

// ListResult is one page of the admin listing.
type ListResult struct {
	Entries    []Entry
	Stats      Stats
	Pagination shared.Pagination
}

// Service handles signups and launch announcements.
type Service struct {
	repo         RepositoryPort
	audit        AuditRecorder
	mailer       mail.Mailer
	templates    *mail.Templates
	logger       *slog.Logger
	validate     *validator.Validate
	downloadLink string
	now          func() time.Time
}

// NewService builds Service instance.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         cfg.Repo,
		audit:        cfg.Audit,
		mailer:       cfg.Mailer,
		templates:    cfg.Templates,
		logger:       logger,
		validate:     newValidator(),
		downloadLink: cfg.DefaultDownloadLink,
		now:          time.Now,
	}
}

// Join validates and records a public signup, then sends the confirmation
// email. Mail failures do not fail the signup.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*Entry, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.City = strings.TrimSpace(req.City)
	if err := s.validate.Struct(req); err != nil {
		return nil, joinValidationError(err)
	}
	if err := CheckEmail(req.Email); err != nil {
		return nil, err
	}
	if err := CheckName(req.Name); err != nil {
		return nil, err
	}
	entry := &Entry{
		Name:      req.Name,
		Email:     shared.NormalizeEmail(req.Email),
		CreatedAt: s.now().UTC(),
	}
	if req.City != "" {
		entry.City = &req.City
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, err
	}
	s.send(ctx, func(t *mail.Templates) (mail.Message, error) {
		return t.WaitlistWelcome(entry.Email, mail.WaitlistWelcomeData{Name: entry.Name, Position: entry.Position})
	})
	return entry, nil
}

// List returns one page of signups with totals.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	page, perPage := shared.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, perPage
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Entries: entries, Stats: stats, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// Notify sends the launch announcement to each email and marks it invited.
// Per-email failures are collected rather than aborting the run.
func (s *Service) Notify(ctx context.Context, actor *rbac.Principal, req NotifyRequest) (NotifyResult, error) {
	if !actor.Can(rbac.SettingsEdit) {
		return NotifyResult{}, httpx.ErrForbidden
	}
	if len(req.Emails) == 0 {
		return NotifyResult{}, fmt.Errorf("%w: at least one email is required", httpx.ErrValidation)
	}
	if s.mailer == nil || s.templates == nil {
		return NotifyResult{}, errors.New("waitlist: mail delivery is not configured")
	}
	link := strings.TrimSpace(req.DownloadLink)
	if link == "" {
		link = s.downloadLink
	}

	result := NotifyResult{Total: len(req.Emails)}
	for _, raw := range req.Emails {
		email := shared.NormalizeEmail(raw)
		if err := s.notifyOne(ctx, email, link); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, email+": "+err.Error())
			s.logger.Warn("waitlist launch email failed", slog.String("email", email), slog.Any("error", err))
			continue
		}
		result.Sent++
	}

	if s.audit != nil {
		err := s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     ActionNotify,
			TargetType: TargetWaitlist,
			TargetID:   "bulk",
			Details: map[string]any{
				"total":        result.Total,
				"success":      result.Sent,
				"failed":       result.Failed,
				"downloadLink": link,
			},
		})
		if err != nil {
			s.logger.Warn("record waitlist notify", slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *Service) notifyOne(ctx context.Context, email, link string) error {
	entry, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return errors.New("not on the waitlist")
		}
		return err
	}
	msg, err := s.templates.WaitlistLaunch(email, mail.WaitlistLaunchData{Name: entry.Name, DownloadLink: link})
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return err
	}
	return s.repo.MarkInvited(ctx, email, s.now().UTC())
}

func (s *Service) send(ctx context.Context, build func(*mail.Templates) (mail.Message, error)) {
	if s.mailer == nil || s.templates == nil {
		return
	}
	msg, err := build(s.templates)
	if err != nil {
		s.logger.Warn("render waitlist email", slog.Any("error", err))
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Warn("send waitlist email", slog.String("template", msg.Template), slog.Any("error", err))
	}
}
