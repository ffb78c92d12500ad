package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/safespora/safespora-admin/internal/jobs"
	"github.com/safespora/safespora-admin/internal/mail"
)

const (
	// QueueMail carries transactional email and is drained first.
	QueueMail = "mail"
	// QueueMaintenance carries scheduled housekeeping tasks.
	QueueMaintenance = "maintenance"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskAnalyticsWarmup refreshes the cached analytics windows.
	TaskAnalyticsWarmup = "analytics:warmup"
	// TaskInvitationsExpire marks stale pending invitations as expired.
	TaskInvitationsExpire = "admins:invitations:expire"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Template string `json:"template,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5), asynq.Queue(QueueMail)), nil
}

// SendEmailJob delivers queued emails through a Mailer.
type SendEmailJob struct {
	Mailer  mail.Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Counter MailCounter
}

// MailCounter counts delivery outcomes per template.
type MailCounter interface {
	MailSent(template string, err error)
}

// Handle processes TaskTypeSendEmail tasks. Malformed payloads are dropped.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("send email: mailer not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("send email: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("send email: empty recipient: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	err := j.Mailer.Send(ctx, mail.Message{
		To:       payload.To,
		Subject:  payload.Subject,
		HTML:     payload.HTML,
		Template: payload.Template,
	})
	if j.Counter != nil {
		j.Counter.MailSent(payload.Template, err)
	}
	if err != nil {
		j.logger().Warn("send email", slog.String("template", payload.Template), slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *SendEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
