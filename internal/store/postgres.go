// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and login audit queries.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore wraps the connection pool used for the audit log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and pings it.
// Call once at startup; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RecordLoginEvent inserts one login_events row. ID and CreatedAt are filled in if zero.
func (s *PostgresStore) RecordLoginEvent(ctx context.Context, ev LoginEvent) error {
	if ev.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating event id: %w", err)
		}
		ev.ID = id
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO login_events (id, telegram_user_id, event, outcome, reason, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.TelegramUserID, ev.Event, ev.Outcome, ev.Reason, ev.IPAddress, ev.UserAgent, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting login event: %w", err)
	}
	return nil
}

// ListLoginEvents returns the most recent events for a Telegram user, newest first.
func (s *PostgresStore) ListLoginEvents(ctx context.Context, telegramUserID int64, limit int) ([]LoginEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, telegram_user_id, event, outcome, reason, ip_address, user_agent, created_at
		 FROM login_events WHERE telegram_user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		telegramUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying login events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LoginEvent, error) {
		var ev LoginEvent
		err := row.Scan(&ev.ID, &ev.TelegramUserID, &ev.Event, &ev.Outcome, &ev.Reason, &ev.IPAddress, &ev.UserAgent, &ev.CreatedAt)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning login events: %w", err)
	}
	return events, nil
}

// CleanupLoginEvents deletes events older than retention. Returns rows deleted.
func (s *PostgresStore) CleanupLoginEvents(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM login_events WHERE created_at < $1",
		time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("deleting old login events: %w", err)
	}
	return tag.RowsAffected(), nil
}
