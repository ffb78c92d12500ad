package admins

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/safespora/safespora-admin/internal/analytics"
	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/view"
)

// Handler serves the administrator pages and JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     rbac.Guard
	activity  ActivityReader
	stats     StatsSource
}

// ActivityReader pages through the activity log.
type ActivityReader interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// StatsSource reports platform totals.
type StatsSource interface {
	Dashboard(ctx context.Context) (analytics.DashboardStats, error)
}

// Rows shown on the profile and settings pages.
const (
	profileActivity = 10
	settingsAdmins  = 100
)

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard}
}

// WithSources attaches the activity log and platform totals read by the
// profile and settings pages.
func (h *Handler) WithSources(activity ActivityReader, stats StatsSource) *Handler {
	h.activity = activity
	h.stats = stats
	return h
}

// MountPages registers the server-rendered pages under /admin.
func (h *Handler) MountPages(r chi.Router) {
	r.With(h.guard.RequireAdminPage()).Get("/profile", h.profilePage)
	r.With(h.guard.RequirePage(rbac.SettingsView)).Get("/settings", h.settingsPage)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePage(rbac.AdminsView))
		r.Get("/admins", h.listPage)
		r.Get("/admins/{id}", h.detailPage)
	})
}

// MountAPI registers the JSON endpoints under /api/admin/admins.
func (h *Handler) MountAPI(r chi.Router) {
	r.With(h.guard.RequireAPI(rbac.AdminsView)).Get("/", h.listAPI)
	r.With(h.guard.RequireAPI(rbac.AdminsView)).Get("/invitations", h.listInvitations)
	r.With(h.guard.RequireAPI(rbac.AdminsInvite)).Post("/invite", h.invite)
	r.With(h.guard.RequireAPI(rbac.AdminsInvite)).Post("/invitations/{id}/revoke", h.revokeInvitation)
	r.With(h.guard.RequireSuperAPI()).Patch("/{id}/permissions", h.updatePermissions)
	r.With(h.guard.RequireAPI(rbac.AdminsDelete)).Patch("/{id}/status", h.setStatus)
}

// GridRow is one module line of the permission matrix.
type GridRow struct {
	Module rbac.Module
	Cells  []GridCell
}

// GridCell is one capability of a GridRow.
type GridCell struct {
	Name    string
	Action  rbac.Action
	Granted bool
}

// GridRows lays out g as module rows in catalog order.
func GridRows(g rbac.Grid) []GridRow {
	rows := make([]GridRow, 0, len(rbac.Modules()))
	for _, m := range rbac.Modules() {
		row := GridRow{Module: m}
		for _, c := range rbac.CapabilitiesFor(m) {
			row.Cells = append(row.Cells, GridCell{Name: c.String(), Action: c.Action(), Granted: g.Has(c)})
		}
		rows = append(rows, row)
	}
	return rows
}

func (h *Handler) listFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	page, perPage := shared.PageFromRequest(r)
	filter := ListFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     page,
		PageSize: perPage,
	}
	if role, ok := rbac.ParseRole(q.Get("role")); ok {
		filter.Role = role
	}
	switch q.Get("status") {
	case StatusActive, StatusInactive:
		filter.Status = q.Get("status")
	}
	return filter
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request) {
	filter := h.listFilter(r)
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.serverError(w, "list admins", err)
		return
	}
	data := map[string]any{
		"Admins":     result.Admins,
		"Pagination": result.Pagination,
		"Filter":     filter,
	}
	if p := rbac.PrincipalFromContext(r.Context()); p.Can(rbac.AdminsInvite) {
		invitations, err := h.service.ListInvitations(r.Context())
		if err != nil {
			h.serverError(w, "list invitations", err)
			return
		}
		data["Invitations"] = invitations
	}
	h.render(w, r, "pages/admins.html", "Admins", data)
}

func (h *Handler) detailPage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	admin, err := h.service.Get(r.Context(), id)
	if err != nil {
		if httpxNotFound(err) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, "load admin", err)
		return
	}
	h.render(w, r, "pages/admin_detail.html", admin.FullName, map[string]any{
		"Admin": admin,
		"Grid":  GridRows(admin.Effective()),
	})
}

func (h *Handler) profilePage(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	var (
		invitation *AcceptedInvitation
		activity   []audit.TimelineRow
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		invitation, err = h.service.AcceptedInvitation(ctx, p)
		return err
	})
	if h.activity != nil {
		g.Go(func() error {
			res, err := h.activity.Timeline(ctx, audit.TimelineFilters{AdminID: p.ID, PageSize: profileActivity})
			activity = res.Rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.serverError(w, "load profile", err)
		return
	}
	h.render(w, r, "pages/profile.html", "My profile", map[string]any{
		"Admin":      p,
		"Grid":       GridRows(p.Effective()),
		"Invitation": invitation,
		"Activity":   activity,
	})
}

func (h *Handler) settingsPage(w http.ResponseWriter, r *http.Request) {
	var (
		list  ListResult
		stats *analytics.DashboardStats
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		list, err = h.service.List(ctx, ListFilter{PageSize: settingsAdmins})
		return err
	})
	if h.stats != nil {
		g.Go(func() error {
			totals, err := h.stats.Dashboard(ctx)
			stats = &totals
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.serverError(w, "load settings", err)
		return
	}
	h.render(w, r, "pages/settings.html", "Settings", map[string]any{
		"Admins":      list.Admins,
		"TotalAdmins": list.Pagination.Total,
		"Stats":       stats,
	})
}

func (h *Handler) listAPI(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.List(r.Context(), h.listFilter(r))
	if err != nil {
		h.logger.Error("list admins", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"admins":     result.Admins,
		"pagination": result.Pagination,
	})
}

func (h *Handler) listInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.service.ListInvitations(r.Context())
	if err != nil {
		h.logger.Error("list invitations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invitations": invitations})
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Invite(r.Context(), rbac.PrincipalFromContext(r.Context()), req)
	if err != nil {
		h.respond(w, "invite admin", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

type permissionsRequest struct {
	Permissions rbac.Grid `json:"permissions"`
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req permissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	changes, err := h.service.UpdatePermissions(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req.Permissions)
	if err != nil {
		h.respond(w, "update admin permissions", err)
		return
	}
	if changes == nil {
		changes = []rbac.PermissionChange{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "changes": changes})
}

type statusRequest struct {
	IsActive *bool `json:"isActive"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.IsActive == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "isActive is required")
		return
	}
	admin, err := h.service.SetActive(r.Context(), rbac.PrincipalFromContext(r.Context()), id, *req.IsActive)
	if err != nil {
		h.respond(w, "set admin status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "admin": admin})
}

func (h *Handler) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokeInvitation(r.Context(), rbac.PrincipalFromContext(r.Context()), id); err != nil {
		h.respond(w, "revoke invitation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// respond writes err as a problem response. Only unexpected errors are logged.
func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	if isDomainError(err) {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	if err := h.templates.Render(w, name, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
