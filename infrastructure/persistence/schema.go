package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// schemaStatements create every table the publisher needs. All statements
// are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		text TEXT NOT NULL,
		enhanced_text JSONB NOT NULL DEFAULT '{}',
		platforms TEXT[] NOT NULL CHECK (cardinality(platforms) > 0),
		image_urls TEXT[] NOT NULL DEFAULT '{}',
		video_urls TEXT[] NOT NULL DEFAULT '{}',
		scheduled_for TIMESTAMPTZ NULL,
		status TEXT NOT NULL,
		error_message TEXT NULL,
		platform_urls JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS posts_due_idx ON posts (scheduled_for) WHERE status = 'scheduled'`,
	`CREATE TABLE IF NOT EXISTS platform_connections (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		access_token TEXT NOT NULL,
		access_token_secret TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		account_id TEXT NULL,
		account_name TEXT NULL,
		scopes TEXT NOT NULL DEFAULT '',
		token_type TEXT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS platform_connections_active_uidx ON platform_connections (user_id, platform) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS publish_results (
		id BIGSERIAL PRIMARY KEY,
		post_id BIGINT NOT NULL REFERENCES posts(id),
		platform TEXT NOT NULL,
		status TEXT NOT NULL,
		platform_post_id TEXT NULL,
		url TEXT NULL,
		failure_kind TEXT NULL,
		error_message TEXT NULL,
		content_sent TEXT NOT NULL DEFAULT '',
		attempt_count INT NOT NULL DEFAULT 0,
		posted_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (post_id, platform),
		CHECK (status <> 'posted' OR (platform_post_id IS NOT NULL AND platform_post_id <> ''))
	)`,
	`CREATE TABLE IF NOT EXISTS publish_jobs (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		post_id BIGINT NULL,
		status TEXT NOT NULL,
		attempt INT NOT NULL DEFAULT 1,
		run_at TIMESTAMPTZ NOT NULL,
		last_error TEXT NULL,
		dedupe_key TEXT NULL,
		locked_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS publish_jobs_due_idx ON publish_jobs (run_at) WHERE status = 'pending'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS publish_jobs_pending_dedupe_uidx ON publish_jobs (dedupe_key) WHERE status = 'pending'`,
}

// lateColumns were added after the first release and are patched in on
// existing databases.
var lateColumns = []struct {
	table  string
	column string
	ddl    string
}{
	{"publish_results", "failure_kind", "ALTER TABLE publish_results ADD COLUMN failure_kind TEXT NULL"},
	{"posts", "platform_urls", "ALTER TABLE posts ADD COLUMN platform_urls JSONB NOT NULL DEFAULT '{}'"},
	{"publish_jobs", "failures", "ALTER TABLE publish_jobs ADD COLUMN failures INT NOT NULL DEFAULT 0"},
}

// EnsureSchema creates missing tables and indexes. Safe to call at startup.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	for _, c := range lateColumns {
		exists, err := columnExists(ctx, db, c.table, c.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.ExecContext(ctx, c.ddl); err != nil {
				return fmt.Errorf("adding column %s.%s failed: %w", c.table, c.column, err)
			}
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	row := db.QueryRowContext(ctx, `SELECT 1 FROM information_schema.columns WHERE table_name=$1 AND column_name=$2`, table, column)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
