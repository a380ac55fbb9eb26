// Package postgres persists workflow aggregates and notifications in
// PostgreSQL.
//
// The whole aggregate is stored as one JSONB document per workflow, with
// the fields the queries need (status, stage, timestamps, version) lifted
// into columns. The version column carries the optimistic concurrency
// check: a save only lands when the stored version still matches the one
// the transition was computed from.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool against the given URL and pings it
func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

// Close releases the pool
func (db *DB) Close() { db.Pool.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    id            TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    current_stage TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    last_modified TIMESTAMPTZ NOT NULL,
    version       INTEGER NOT NULL,
    data          JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS workflows_last_modified_idx ON workflows (last_modified);
CREATE INDEX IF NOT EXISTS workflows_participants_idx ON workflows USING GIN ((data -> 'participants'));

CREATE TABLE IF NOT EXISTS notifications (
    id                TEXT PRIMARY KEY,
    workflow_id       TEXT NOT NULL,
    kind              TEXT NOT NULL,
    recipient_role    TEXT NOT NULL,
    recipient_user_id TEXT NOT NULL DEFAULT '',
    message           TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    read_at           TIMESTAMPTZ,
    dedupe_key        TEXT NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS notifications_recipient_idx ON notifications (recipient_role, recipient_user_id);
`

// EnsureSchema creates the tables and indexes if they do not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, schema)
	return err
}
