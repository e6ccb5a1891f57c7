package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// PingTimeout bounds how long Open waits for the server to come up.
	PingTimeout time.Duration
}

// Open connects to Postgres and waits until the server answers a ping.
func Open(ctx context.Context, dsn string, opts Options, logger *zap.Logger) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)
	backoff := 500 * time.Millisecond
	for {
		err := conn.PingContext(ctx)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			_ = conn.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Warn("[db][ping] postgres not ready yet", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		phone VARCHAR(20) NOT NULL UNIQUE,
		username VARCHAR(64),
		profile_complete BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS verification_attempts (
		id UUID PRIMARY KEY,
		phone VARCHAR(20) NOT NULL,
		status VARCHAR(32) NOT NULL,
		link_token VARCHAR(64) NOT NULL UNIQUE,
		chat_id BIGINT,
		code_hash VARCHAR(128),
		attempts INT NOT NULL DEFAULT 0,
		max_attempts INT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_attempts_chat_status
		ON verification_attempts (chat_id, status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS telegram_links (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL UNIQUE,
		user_id BIGINT NOT NULL UNIQUE REFERENCES users(id),
		linked_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS employee_invitations (
		id BIGSERIAL PRIMARY KEY,
		company_id BIGINT NOT NULL,
		phone VARCHAR(20) NOT NULL,
		role VARCHAR(32) NOT NULL,
		user_id BIGINT REFERENCES users(id),
		accepted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_employee_invitations_phone_pending
		ON employee_invitations (phone) WHERE accepted_at IS NULL`,
}

// EnsureSchema creates the tables used by phone verification. Safe to run on
// every start.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
