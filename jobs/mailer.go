package jobs

import (
	"context"

	"github.com/safespora/safespora-admin/internal/mail"
)

// Enqueuer is the subset of Client used by QueueMailer.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) error
}

// QueueMailer is a mail.Mailer that hands messages to the worker queue.
// Send returns once the task is stored; delivery happens in the worker.
type QueueMailer struct {
	Queue Enqueuer
}

// Send enqueues msg.
func (m QueueMailer) Send(ctx context.Context, msg mail.Message) error {
	return m.Queue.EnqueueSendEmail(ctx, SendEmailPayload{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Template: msg.Template,
	})
}
