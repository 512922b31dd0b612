package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on every Open. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS personas (
		case_id        TEXT PRIMARY KEY,
		id             TEXT        NOT NULL,
		casualness     INTEGER     NOT NULL,
		emoji_usage    TEXT        NOT NULL,
		reference_text TEXT        NOT NULL DEFAULT '',
		quick_settings JSONB       NOT NULL DEFAULT '{}',
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS persona_analyses (
		persona_id  TEXT PRIMARY KEY,
		personality TEXT        NOT NULL DEFAULT '',
		patterns    TEXT        NOT NULL DEFAULT '',
		model       TEXT        NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq        BIGSERIAL PRIMARY KEY,
		session_id TEXT        NOT NULL,
		speaker    TEXT        NOT NULL,
		content    TEXT        NOT NULL,
		sent_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		id       TEXT PRIMARY KEY,
		plan     TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS usage_counters (
		user_id    TEXT    NOT NULL,
		usage_type TEXT    NOT NULL,
		day        TEXT    NOT NULL,
		count      INTEGER NOT NULL,
		PRIMARY KEY (user_id, usage_type, day)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_day ON usage_counters(day)`,
	`CREATE TABLE IF NOT EXISTS generations (
		id           TEXT PRIMARY KEY,
		user_id      TEXT        NOT NULL,
		case_id      TEXT        NOT NULL,
		session_id   TEXT        NOT NULL,
		mode         TEXT        NOT NULL,
		round        INTEGER     NOT NULL,
		previous_id  TEXT        NOT NULL DEFAULT '',
		model        TEXT        NOT NULL DEFAULT '',
		status       TEXT        NOT NULL,
		failure_kind TEXT        NOT NULL DEFAULT '',
		suggestions  JSONB       NOT NULL DEFAULT '[]',
		created_at   TIMESTAMPTZ NOT NULL,
		inserted     BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_session ON generations(session_id, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_case ON generations(case_id)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		seq              BIGSERIAL PRIMARY KEY,
		id               TEXT        NOT NULL UNIQUE,
		generation_id    TEXT        NOT NULL REFERENCES generations(id),
		suggestion_index INTEGER     NOT NULL,
		rating           TEXT        NOT NULL DEFAULT '',
		reaction         TEXT        NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_generation ON feedback(generation_id, seq)`,
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store.postgres: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}
