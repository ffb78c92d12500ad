package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/safespora/safespora-admin/internal/admins"
	"github.com/safespora/safespora-admin/internal/analytics"
	analytichttp "github.com/safespora/safespora-admin/internal/analytics/http"
	"github.com/safespora/safespora-admin/internal/app"
	"github.com/safespora/safespora-admin/internal/audit"
	audithttp "github.com/safespora/safespora-admin/internal/audit/http"
	"github.com/safespora/safespora-admin/internal/auth"
	"github.com/safespora/safespora-admin/internal/identity"
	"github.com/safespora/safespora-admin/internal/incidents"
	"github.com/safespora/safespora-admin/internal/mail"
	"github.com/safespora/safespora-admin/internal/moderation"
	"github.com/safespora/safespora-admin/internal/observability"
	"github.com/safespora/safespora-admin/internal/platform/cache"
	"github.com/safespora/safespora-admin/internal/platform/db"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/internal/shared"
	"github.com/safespora/safespora-admin/internal/staff"
	"github.com/safespora/safespora-admin/internal/users"
	"github.com/safespora/safespora-admin/internal/view"
	"github.com/safespora/safespora-admin/internal/waitlist"
	"github.com/safespora/safespora-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "safespora-admin"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cfg.Redis().Connect(ctx, "safespora-admin")
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.Redis().Queue()
	metrics := observability.NewMetrics()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	mailTemplates, err := mail.NewTemplates(cfg.PortalURL)
	if err != nil {
		logger.Error("parse mail templates", slog.Any("error", err))
		os.Exit(1)
	}

	var mailer mail.Mailer = mail.NewSMTPMailer(cfg.SMTP())
	if cfg.MailAsync {
		queue, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		mailer = jobs.QueueMailer{Queue: queue}
	}

	recorder := audit.NewRecorder(dbpool)

	adminService := admins.NewService(admins.Config{
		Repo:       admins.NewRepository(dbpool),
		Identities: identity.NewProvider(dbpool),
		Audit:      recorder,
		Mailer:     mailer,
		Templates:  mailTemplates,
		Sessions:   sessionManager,
		Logger:     logger,
		InviteTTL:  cfg.InviteTTL,
	})

	guard := rbac.Guard{Source: adminService, Logger: logger, Metrics: metrics}

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	analyticsService := analytics.NewService(analytics.NewRepository(dbpool), analyticsCache, logger)
	if err := analyticsCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("analytics cache invalidated", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe analytics invalidation", slog.Any("error", err))
	}

	authService := auth.NewService(identity.NewProvider(dbpool), adminService)
	usersService := users.NewService(users.NewRepository(dbpool), recorder, logger)
	incidentService := incidents.NewService(incidents.NewRepository(dbpool), recorder, analyticsService, logger)
	staffService := staff.NewService(staff.NewRepository(dbpool), recorder, logger)
	waitlistService := waitlist.NewService(waitlist.Config{
		Repo:                waitlist.NewRepository(dbpool),
		Audit:               recorder,
		Mailer:              mailer,
		Templates:           mailTemplates,
		Logger:              logger,
		DefaultDownloadLink: cfg.DownloadLink,
	})

	auditService := audit.NewService(audit.NewRepository(dbpool))

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Guard:              guard,
		AuthHandler:        auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, guard),
		AdminsHandler:      admins.NewHandler(logger, adminService, templates, csrfManager, guard).WithSources(auditService, analyticsService),
		UsersHandler:       users.NewHandler(logger, usersService, templates, csrfManager, guard),
		IncidentsHandler:   incidents.NewHandler(logger, incidentService, templates, csrfManager, guard),
		StaffHandler:       staff.NewHandler(logger, staffService, templates, csrfManager, guard),
		ModerationHandler:  moderation.NewHandler(logger, incidentService, staffService, templates, csrfManager, guard),
		AnalyticsHandler:   analytichttp.NewHandler(logger, analyticsService, templates, csrfManager),
		AuditHandler:       audithttp.NewHandler(logger, auditService, templates, csrfManager, audit.CSVExporter{}),
		WaitlistHandler:    waitlist.NewHandler(logger, waitlistService, templates, csrfManager, guard, cfg.WaitlistRateLimit, cfg.WaitlistRateWindow).WithMetrics(metrics),
		PermissionsHandler: rbac.NewPermissionsHandler(guard),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return cache.Ping(ctx, redisClient) },
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("mail_async", cfg.MailAsync))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
