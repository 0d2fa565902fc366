// Package db provides PostgreSQL connectivity for the engine.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/proptrust/backend/internal/config"
)

// DB wraps the connection pool with the engine's transaction helpers.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

const (
	connectAttempts = 4
	connectBackoff  = 500 * time.Millisecond
	pingTimeout     = 3 * time.Second

	txAttempts   = 3
	txRetryDelay = 50 * time.Millisecond
)

// New opens a pool and waits for the server to accept connections. The
// engine frequently starts before Postgres finishes booting, so the
// initial ping retries with backoff instead of failing outright.
func New(cfg config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.MaxLifetime)

	var pingErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * connectBackoff)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		pingErr = pool.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			break
		}
		logger.Warn("database not ready, retrying",
			"attempt", attempt+1,
			"host", cfg.Host,
			"error", pingErr,
		)
	}
	if pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, pingErr)
	}

	logger.Info("Database connection established",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	return &DB{DB: pool, logger: logger}, nil
}

// Close shuts the pool down.
func (d *DB) Close() error {
	d.logger.Info("Closing database connection")
	return d.DB.Close()
}

// InTx runs fn inside a transaction and retries transient conflicts
// (serialization failures, deadlocks). Concurrent verify and
// tamper-check calls must never surface a spurious conflict to the
// caller; anything still failing after the retry budget was a real
// error all along.
func (d *DB) InTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * txRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			d.logger.Warn("retrying conflicting transaction", "attempt", attempt+1, "error", err)
		}

		err = d.runTx(ctx, fn)
		if err == nil || !retryableTxError(err) {
			return err
		}
	}
	return err
}

func (d *DB) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			d.logger.Error("rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// retryableTxError reports whether the failure is a transient conflict
// worth another attempt.
func retryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
