// Package cache connects to the Redis instance shared by sessions, the
// analytics cache and the job queue.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Config addresses one Redis database.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client named after the calling process and pings it.
func (c Config) Connect(ctx context.Context, clientName string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       c.Addr,
		Password:   c.Password,
		DB:         c.DB,
		ClientName: clientName,
	})
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Queue returns the asynq connection options for the same database.
func (c Config) Queue() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.Addr, Password: c.Password, DB: c.DB}
}

// Ping checks the connection within a bounded time.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("platform/cache: ping: %w", err)
	}
	return nil
}
