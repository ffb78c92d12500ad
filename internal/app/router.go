package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/safespora/safespora-admin/internal/admins"
	analytichttp "github.com/safespora/safespora-admin/internal/analytics/http"
	audithttp "github.com/safespora/safespora-admin/internal/audit/http"
	"github.com/safespora/safespora-admin/internal/auth"
	"github.com/safespora/safespora-admin/internal/incidents"
	"github.com/safespora/safespora-admin/internal/moderation"
	"github.com/safespora/safespora-admin/internal/observability"
	"github.com/safespora/safespora-admin/internal/platform/httpx"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/staff"
	"github.com/safespora/safespora-admin/internal/users"
	"github.com/safespora/safespora-admin/internal/waitlist"
	"github.com/safespora/safespora-admin/jobs"
	"github.com/safespora/safespora-admin/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          rbac.Guard

	AuthHandler        *auth.Handler
	AdminsHandler      *admins.Handler
	UsersHandler       *users.Handler
	IncidentsHandler   *incidents.Handler
	StaffHandler       *staff.Handler
	ModerationHandler  *moderation.Handler
	AnalyticsHandler   *analytichttp.Handler
	AuditHandler       *audithttp.Handler
	WaitlistHandler    *waitlist.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics

	// HealthChecks are run by /healthz, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// NewRouter constructs the chi.Router with SafeSpora defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", healthHandler(params.Logger, params.HealthChecks))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/dashboard", http.StatusSeeOther)
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/admin", func(r chi.Router) {
		if params.AnalyticsHandler != nil {
			params.AnalyticsHandler.MountRoutes(r, params.Guard)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r, params.Guard)
		}
		if params.AdminsHandler != nil {
			params.AdminsHandler.MountPages(r)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountPages)
		}
		if params.IncidentsHandler != nil {
			r.Route("/incidents", params.IncidentsHandler.MountPages)
		}
		if params.StaffHandler != nil {
			r.Route("/staff", params.StaffHandler.MountPages)
		}
		if params.ModerationHandler != nil {
			r.Route("/moderation", params.ModerationHandler.MountRoutes)
		}
		if params.WaitlistHandler != nil {
			r.Route("/waitlist", params.WaitlistHandler.MountPages)
		}
	})

	r.Route("/api/admin", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/profile", params.AuthHandler.MountAPI)
		}
		if params.AdminsHandler != nil {
			r.Route("/admins", params.AdminsHandler.MountAPI)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountAPI)
		}
		if params.IncidentsHandler != nil {
			r.Route("/incidents", params.IncidentsHandler.MountAPI)
		}
		if params.StaffHandler != nil {
			r.Route("/staff", params.StaffHandler.MountAPI)
		}
		if params.WaitlistHandler != nil {
			r.Route("/waitlist", params.WaitlistHandler.MountAPI)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
	})

	if params.WaitlistHandler != nil {
		r.Route("/api/waitlist", params.WaitlistHandler.MountPublic)
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func healthHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		components := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				if logger != nil {
					logger.Warn("health check failed", slog.String("component", name), slog.Any("error", err))
				}
				components[name] = "down"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}
		httpx.JSON(w, code, map[string]any{"status": status, "components": components})
	}
}

// staticCacheHandler caches embedded assets in the browser for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
