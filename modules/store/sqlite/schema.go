package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements create the schema. All are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS personas (
		case_id        TEXT PRIMARY KEY,
		id             TEXT    NOT NULL,
		casualness     INTEGER NOT NULL,
		emoji_usage    TEXT    NOT NULL,
		reference_text TEXT    NOT NULL DEFAULT '',
		quick_settings TEXT    NOT NULL DEFAULT '{}',
		updated_at     TEXT    NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS persona_analyses (
		persona_id  TEXT PRIMARY KEY,
		personality TEXT NOT NULL DEFAULT '',
		patterns    TEXT NOT NULL DEFAULT '',
		model       TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		speaker    TEXT NOT NULL,
		content    TEXT NOT NULL,
		sent_at    TEXT NOT NULL
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
		user_id      TEXT    NOT NULL,
		case_id      TEXT    NOT NULL,
		session_id   TEXT    NOT NULL,
		mode         TEXT    NOT NULL,
		round        INTEGER NOT NULL,
		previous_id  TEXT    NOT NULL DEFAULT '',
		model        TEXT    NOT NULL DEFAULT '',
		status       TEXT    NOT NULL,
		failure_kind TEXT    NOT NULL DEFAULT '',
		suggestions  TEXT    NOT NULL DEFAULT '[]',
		created_at   TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_generations_session ON generations(session_id, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_case ON generations(case_id)`,

	`CREATE TABLE IF NOT EXISTS feedback (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT    NOT NULL UNIQUE,
		generation_id    TEXT    NOT NULL REFERENCES generations(id),
		suggestion_index INTEGER NOT NULL,
		rating           TEXT    NOT NULL DEFAULT '',
		reaction         TEXT    NOT NULL DEFAULT '',
		created_at       TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_feedback_generation ON feedback(generation_id, seq)`,
}

// migrate brings the schema to schemaVersion.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("store.sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("store.sqlite: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store.sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("store.sqlite: record schema version: %w", err)
	}
	return nil
}
