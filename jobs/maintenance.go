package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/safespora/safespora-admin/internal/jobs"
)

// AnalyticsWindows are the day ranges warmed nightly.
var AnalyticsWindows = []int{7, 30, 90}

// AnalyticsWarmer precomputes one analytics window.
type AnalyticsWarmer interface {
	Warm(ctx context.Context, days int) error
}

// InvitationExpirer flips pending invitations past their deadline to expired.
type InvitationExpirer interface {
	ExpireInvitations(ctx context.Context, now time.Time) (int64, error)
}

// NewAnalyticsWarmupTask builds the nightly warmup task.
func NewAnalyticsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAnalyticsWarmup, nil, asynq.Queue(QueueMaintenance))
}

// NewInvitationsExpireTask builds the invitation expiry task.
func NewInvitationsExpireTask() *asynq.Task {
	return asynq.NewTask(TaskInvitationsExpire, nil, asynq.Queue(QueueMaintenance))
}

// AnalyticsWarmupJob fills the analytics cache for the standard windows.
type AnalyticsWarmupJob struct {
	Analytics AnalyticsWarmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle warms every window and reports the first failure.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAnalyticsWarmup)
	logger := loggerOr(j.Logger)
	var firstErr error
	for _, days := range AnalyticsWindows {
		if err := j.Analytics.Warm(ctx, days); err != nil {
			logger.Error("warm analytics window", slog.Int("days", days), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr == nil {
		logger.Info("analytics warmup finished", slog.Int("windows", len(AnalyticsWindows)))
	}
	return tracker.End(firstErr)
}

// InvitationExpiryJob expires stale invitations.
type InvitationExpiryJob struct {
	Invitations InvitationExpirer
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// Handle runs one expiry sweep.
func (j *InvitationExpiryJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Invitations == nil {
		return errors.New("invitation expiry: handler not configured")
	}
	tracker := j.Metrics.Track(TaskInvitationsExpire)
	now := time.Now().UTC()
	if j.clock != nil {
		now = j.clock()
	}
	n, err := j.Invitations.ExpireInvitations(ctx, now)
	if err != nil {
		loggerOr(j.Logger).Error("expire invitations", slog.Any("error", err))
		return tracker.End(err)
	}
	if n > 0 {
		loggerOr(j.Logger).Info("invitations expired", slog.Int64("count", n))
	}
	return tracker.End(nil)
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
