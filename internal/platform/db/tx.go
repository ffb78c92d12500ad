package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxStarter is satisfied by *pgxpool.Pool and pgxmock pools.
type TxStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxOption adjusts a transaction started by WithTx.
type TxOption func(*txConfig)

type txConfig struct {
	opts        pgx.TxOptions
	lockTimeout time.Duration
}

// Isolation overrides the default read-committed isolation level.
func Isolation(level pgx.TxIsoLevel) TxOption {
	return func(c *txConfig) { c.opts.IsoLevel = level }
}

// LockTimeout bounds how long statements wait for row or table locks. A
// statement that exceeds it fails with lock_not_available.
func LockTimeout(d time.Duration) TxOption {
	return func(c *txConfig) { c.lockTimeout = d }
}

// WithTx runs fn in a transaction and commits when fn returns nil. Any error
// or panic rolls back.
func WithTx(ctx context.Context, db TxStarter, fn func(pgx.Tx) error, options ...TxOption) error {
	cfg := txConfig{opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
	for _, opt := range options {
		opt(&cfg)
	}

	tx, err := db.BeginTx(ctx, cfg.opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if cfg.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", cfg.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
