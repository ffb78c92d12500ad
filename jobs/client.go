package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client submits tasks to Redis.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a Client for opts.
func NewClient(opts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(opts)}, nil
}

// Enqueue stores a send-email task and returns its queue info.
func (c *Client) Enqueue(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueSendEmail satisfies Enqueuer for QueueMailer.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) error {
	_, err := c.Enqueue(ctx, payload)
	return err
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
