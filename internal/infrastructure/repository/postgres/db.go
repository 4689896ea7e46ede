package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema bootstraps the tables. The advisory lock serializes DDL
// across api/worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS provider_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	email_address TEXT NOT NULL,
	access_token TEXT NOT NULL,
	refresh_token TEXT,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	last_sync TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL,
	provider_id TEXT NOT NULL REFERENCES provider_accounts(id),
	user_id TEXT NOT NULL,
	thread_id TEXT,
	sender TEXT NOT NULL,
	recipients JSONB NOT NULL DEFAULT '[]'::jsonb,
	subject TEXT,
	body TEXT,
	html_body TEXT,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	is_important BOOLEAN NOT NULL DEFAULT FALSE,
	labels JSONB NOT NULL DEFAULT '[]'::jsonb,
	received_at TIMESTAMPTZ,
	processed_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT uix_message_provider UNIQUE (external_id, provider_id)
);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	external_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	inline BOOLEAN NOT NULL DEFAULT FALSE,
	downloaded BOOLEAN NOT NULL DEFAULT FALSE,
	data BYTEA,
	document_type TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	classification_error TEXT,
	entities JSONB NOT NULL DEFAULT '[]'::jsonb,
	last_extracted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trigger_rules (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	condition TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_thread_id ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_attachments_extractable ON attachments(document_type, last_extracted_at);
CREATE INDEX IF NOT EXISTS idx_trigger_rules_user ON trigger_rules(user_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
