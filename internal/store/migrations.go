package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// postgresSchema is the full archive schema. Statements are idempotent so
// migrations can run on every boot.
//
// The unique constraint on messages.message_id is a correctness requirement:
// both producers may report the same message and must converge to one row.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS subnets (
	id BIGSERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	tags TEXT[],
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS channels (
	channel_id BIGINT PRIMARY KEY,
	subnet_id BIGINT REFERENCES subnets(id) ON DELETE SET NULL,
	name TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
	user_id BIGINT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	bot BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	message_id BIGINT PRIMARY KEY,
	channel_id BIGINT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
	author_id BIGINT NOT NULL DEFAULT 0,
	content TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	edited_at TIMESTAMPTZ,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at TIMESTAMPTZ,
	attachments JSONB,
	embeds JSONB,
	reactions JSONB,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages (channel_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_author ON messages (author_id);
CREATE INDEX IF NOT EXISTS idx_channels_subnet ON channels (subnet_id);

CREATE TABLE IF NOT EXISTS cursors (
	channel_id BIGINT NOT NULL,
	producer TEXT NOT NULL,
	position BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (channel_id, producer)
);

CREATE TABLE IF NOT EXISTS backfill_jobs (
	id TEXT PRIMARY KEY,
	channel_id BIGINT NOT NULL REFERENCES channels(channel_id) ON DELETE CASCADE,
	window_start TIMESTAMPTZ NOT NULL,
	window_end TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'pending',
	messages_imported INTEGER NOT NULL DEFAULT 0,
	error_detail TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_backfill_jobs_channel_status ON backfill_jobs (channel_id, status);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
