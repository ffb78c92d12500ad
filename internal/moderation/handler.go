// Package moderation renders the combined queue of incidents and staff
// records awaiting an administrator.
package moderation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/safespora/safespora-admin/internal/incidents"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/staff"
	"github.com/safespora/safespora-admin/internal/view"
)

const queueLimit = 10

// IncidentQueue lists open incidents.
type IncidentQueue interface {
	Pending(ctx context.Context, limit int) ([]incidents.Incident, error)
}

// StaffQueue lists staff records by status.
type StaffQueue interface {
	ByStatus(ctx context.Context, status string, limit int) ([]staff.Record, error)
}

// Queue is the rendered moderation queue.
type Queue struct {
	Incidents    []incidents.Incident
	PendingStaff []staff.Record
	FlaggedStaff []staff.Record
}

// Handler serves /admin/moderation.
type Handler struct {
	logger    *slog.Logger
	incidents IncidentQueue
	staff     StaffQueue
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     rbac.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, inc IncidentQueue, st StaffQueue, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, incidents: inc, staff: st, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers the queue page.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequirePage(rbac.ModerationView)).Get("/", h.showQueue)
}

// Load gathers the queue sections concurrently. Sections the principal
// cannot view stay empty.
func (h *Handler) Load(ctx context.Context, p *rbac.Principal) (Queue, error) {
	var q Queue
	g, gctx := errgroup.WithContext(ctx)
	if p.Can(rbac.IncidentsView) {
		g.Go(func() error {
			items, err := h.incidents.Pending(gctx, queueLimit)
			q.Incidents = items
			return err
		})
	}
	if p.Can(rbac.StaffView) {
		g.Go(func() error {
			items, err := h.staff.ByStatus(gctx, staff.StatusPending, queueLimit)
			q.PendingStaff = items
			return err
		})
		g.Go(func() error {
			items, err := h.staff.ByStatus(gctx, staff.StatusFlagged, queueLimit)
			q.FlaggedStaff = items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Queue{}, err
	}
	return q, nil
}

func (h *Handler) showQueue(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	q, err := h.Load(r.Context(), p)
	if err != nil {
		h.logger.Error("load moderation queue", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := map[string]any{
		"Queue":  q,
		"CanAct": p.Can(rbac.ModerationEdit),
		"Total":  len(q.Incidents) + len(q.PendingStaff) + len(q.FlaggedStaff),
		"Limit":  queueLimit,
	}
	if err := h.templates.Render(w, "pages/moderation.html", view.NewTemplateData(r, h.csrf, "Moderation", data)); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
