package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/safespora/safespora-admin/internal/admins"
	"github.com/safespora/safespora-admin/internal/analytics"
	"github.com/safespora/safespora-admin/internal/app"
	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/identity"
	jobmetrics "github.com/safespora/safespora-admin/internal/jobs"
	"github.com/safespora/safespora-admin/internal/mail"
	"github.com/safespora/safespora-admin/internal/observability"
	"github.com/safespora/safespora-admin/internal/platform/db"
	"github.com/safespora/safespora-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "safespora-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cfg.Redis().Connect(ctx, "safespora-worker")
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	mailTemplates, err := mail.NewTemplates(cfg.PortalURL)
	if err != nil {
		logger.Error("parse mail templates", slog.Any("error", err))
		os.Exit(1)
	}
	smtp := mail.NewSMTPMailer(cfg.SMTP())

	analyticsService := analytics.NewService(analytics.NewRepository(pool), analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL), logger)
	adminService := admins.NewService(admins.Config{
		Repo:       admins.NewRepository(pool),
		Identities: identity.NewProvider(pool),
		Audit:      audit.NewRecorder(pool),
		Mailer:     smtp,
		Templates:  mailTemplates,
		Logger:     logger,
		InviteTTL:  cfg.InviteTTL,
	})

	sendEmail := &jobs.SendEmailJob{Mailer: smtp, Logger: logger, Metrics: jobMetrics, Counter: metrics}
	warmup := &jobs.AnalyticsWarmupJob{Analytics: analyticsService, Logger: logger, Metrics: jobMetrics}
	expiry := &jobs.InvitationExpiryJob{Invitations: adminService, Logger: logger, Metrics: jobMetrics}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().Queue(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: sendEmail.Handle},
			{Type: jobs.TaskAnalyticsWarmup, Handler: warmup.Handle},
			{Type: jobs.TaskInvitationsExpire, Handler: expiry.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: jobs.NewAnalyticsWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: jobs.NewInvitationsExpireTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
		Concurrency: cfg.WorkerConcurrency,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
