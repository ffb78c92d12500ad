package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/safespora/safespora-admin/internal/mail"
	"github.com/safespora/safespora-admin/jobs"
)

// JobsCLI wraps manual management helpers for the mail queue.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
	templates *mail.Templates
}

// NewJobsCLI initialises the CLI helpers for the given Redis connection.
func NewJobsCLI(opts asynq.RedisClientOpt, templates *mail.Templates) (*JobsCLI, error) {
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts), templates: templates}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// SendTestMail queues the test template addressed to to.
func (c *JobsCLI) SendTestMail(ctx context.Context, to string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil || c.templates == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	msg, err := c.templates.Test(to)
	if err != nil {
		return nil, err
	}
	return c.client.Enqueue(ctx, jobs.SendEmailPayload{To: msg.To, Subject: msg.Subject, HTML: msg.HTML, Template: msg.Template})
}

// InspectQueues reports the counters of every worker queue.
func (c *JobsCLI) InspectQueues(_ context.Context) ([]jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	return jobs.ReadStats(c.inspector)
}

func newJobsCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and feed the background queue",
		RunE:  requireSubcommand,
	}

	withQueue := func(run func(cmd *cobra.Command, q JobQueue) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			q, err := d.queue(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()
			return run(cmd, q)
		}
	}

	var to string
	sendTest := &cobra.Command{
		Use:   "send-test-mail",
		Short: "Queue a test email for the worker to deliver",
		Args:  cobra.NoArgs,
		RunE: withQueue(func(cmd *cobra.Command, q JobQueue) error {
			if to == "" {
				return errors.New("--to is required")
			}
			info, err := q.SendTestMail(cmd.Context(), to)
			if err != nil {
				return fmt.Errorf("queue test mail: %w", err)
			}
			cmd.Printf("Queued %s task %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	}
	sendTest.Flags().StringVar(&to, "to", "", "recipient address")

	queue := &cobra.Command{
		Use:   "queue",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: withQueue(func(cmd *cobra.Command, q JobQueue) error {
			all, err := q.InspectQueues(cmd.Context())
			if err != nil {
				return err
			}
			for _, stats := range all {
				cmd.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			}
			return nil
		}),
	}

	cmd.AddCommand(sendTest, queue)
	return cmd
}
