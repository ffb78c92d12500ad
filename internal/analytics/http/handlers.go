package analytichttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/safespora/safespora-admin/internal/analytics"
	"github.com/safespora/safespora-admin/internal/analytics/export"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/view"
)

const requestTimeout = 5 * time.Second

// AnalyticsService defines the dashboard data contract used by the handler.
type AnalyticsService interface {
	Dashboard(ctx context.Context) (analytics.DashboardStats, error)
	RecentIncidents(ctx context.Context) ([]analytics.RecentIncident, error)
	Report(ctx context.Context, days int) (analytics.Report, error)
}

// Handler coordinates HTTP requests for the dashboard and analytics pages.
type Handler struct {
	logger    *slog.Logger
	service   AnalyticsService
	templates *view.Engine
	csrf      *shared.CSRFManager
	csvPool   sync.Pool
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service AnalyticsService, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// MountRoutes registers the dashboard, which every active administrator may
// open, and the capability-gated analytics pages.
func (h *Handler) MountRoutes(r chi.Router, guard rbac.Guard) {
	r.With(guard.RequireAdminPage()).Get("/dashboard", h.handleDashboard)
	r.Group(func(gr chi.Router) {
		gr.Use(guard.RequirePage(rbac.AnalyticsView))
		gr.Get("/analytics", h.handleAnalytics)
		gr.With(rbac.ThrottlePerAdmin(10, time.Minute)).Get("/analytics/export.csv", h.handleCSV)
	})
}

// DashboardView is the dashboard page model.
type DashboardView struct {
	analytics.DashboardStats
	Recent []analytics.RecentIncident
}

// ReportView is the analytics page model.
type ReportView struct {
	analytics.Report
	Windows []int
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var vm DashboardView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := h.service.Dashboard(gctx)
		vm.DashboardStats = stats
		return err
	})
	g.Go(func() error {
		recent, err := h.service.RecentIncidents(gctx)
		vm.Recent = recent
		return err
	})
	if err := g.Wait(); err != nil {
		h.handleServerError(w, "load dashboard", err)
		return
	}
	h.render(w, r, "pages/dashboard.html", "Dashboard", vm)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		http.Error(w, "invalid days", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := h.service.Report(ctx, days)
	if err != nil {
		h.handleServerError(w, "load analytics", err)
		return
	}
	h.render(w, r, "pages/analytics.html", "Analytics", ReportView{Report: report, Windows: analytics.Windows})
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(r)
	if !ok {
		http.Error(w, "invalid days", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := h.service.Report(ctx, days)
	if err != nil {
		h.handleServerError(w, "load analytics", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteReportCSV(buf, report); err != nil {
		h.handleServerError(w, "write analytics csv", err)
		return
	}

	filename := fmt.Sprintf("safespora-analytics-%dd-%s.csv", report.Days, report.To.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func parseDays(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return analytics.DefaultWindowDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || !slices.Contains(analytics.Windows, days) {
		return 0, false
	}
	return days, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	if err := h.templates.Render(w, name, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
