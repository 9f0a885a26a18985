package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// migrate creates the schema idempotently. Column types are the only thing
// that differs between dialects, so the DDL is written once with
// placeholders for them.
func (db *DB) migrate(ctx context.Context) error {
	types := map[string]string{
		"{ts}":    "DATETIME",
		"{float}": "REAL",
		"{int}":   "INTEGER",
		"{bool}":  "INTEGER",
		"{false}": "0",
		"{true}":  "1",
	}
	if db.dialect == DialectPostgres {
		types = map[string]string{
			"{ts}":    "TIMESTAMPTZ",
			"{float}": "DOUBLE PRECISION",
			"{int}":   "BIGINT",
			"{bool}":  "BOOLEAN",
			"{false}": "FALSE",
			"{true}":  "TRUE",
		}
	}

	for i, stmt := range schema {
		for k, v := range types {
			stmt = strings.ReplaceAll(stmt, k, v)
		}
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                TEXT PRIMARY KEY,
		github_id         {int} NOT NULL UNIQUE,
		username          TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		avatar_url        TEXT NOT NULL DEFAULT '',
		trust_score       {float} NOT NULL DEFAULT 1.0,
		leaderboard_score {float} NOT NULL DEFAULT 0,
		stars_given       {int} NOT NULL DEFAULT 0,
		stars_received    {int} NOT NULL DEFAULT 0,
		streak_count      {int} NOT NULL DEFAULT 0,
		is_blocked        {bool} NOT NULL DEFAULT {false},
		role              TEXT NOT NULL DEFAULT 'USER',
		last_swipe_at     {ts},
		created_at        {ts} NOT NULL,
		updated_at        {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_leaderboard_score ON users(leaderboard_score)`,

	`CREATE TABLE IF NOT EXISTS credentials (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL REFERENCES users(id),
		provider            TEXT NOT NULL,
		provider_account_id TEXT NOT NULL,
		access_token        TEXT NOT NULL,
		created_at          {ts} NOT NULL,
		updated_at          {ts} NOT NULL,
		UNIQUE (provider, provider_account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_user ON credentials(user_id, provider)`,

	`CREATE TABLE IF NOT EXISTS repositories (
		id               TEXT PRIMARY KEY,
		github_id        TEXT NOT NULL UNIQUE,
		owner_id         TEXT NOT NULL REFERENCES users(id),
		name             TEXT NOT NULL,
		full_name        TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL DEFAULT '',
		language         TEXT NOT NULL DEFAULT '',
		github_stars     {int} NOT NULL DEFAULT 0,
		forks            {int} NOT NULL DEFAULT 0,
		watchers         {int} NOT NULL DEFAULT 0,
		star_count       {int} NOT NULL DEFAULT 0,
		engagement_score {float} NOT NULL DEFAULT 0,
		visibility_score {float} NOT NULL DEFAULT 0,
		is_active        {bool} NOT NULL DEFAULT {true},
		synced_at        {ts},
		sync_attempt_at  {ts},
		created_at       {ts} NOT NULL,
		updated_at       {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_repositories_feed ON repositories(is_active, visibility_score DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_repositories_owner ON repositories(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_repositories_sync_attempt ON repositories(is_active, sync_attempt_at)`,

	`CREATE TABLE IF NOT EXISTS swipe_actions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id),
		repository_id TEXT NOT NULL REFERENCES repositories(id),
		type          TEXT NOT NULL,
		ip_address    TEXT NOT NULL DEFAULT '',
		user_agent    TEXT NOT NULL DEFAULT '',
		created_at    {ts} NOT NULL,
		UNIQUE (user_id, repository_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_swipe_actions_user_type ON swipe_actions(user_id, type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_swipe_actions_repository ON swipe_actions(repository_id)`,

	`CREATE TABLE IF NOT EXISTS activity_streaks (
		user_id        TEXT PRIMARY KEY REFERENCES users(id),
		current_streak {int} NOT NULL DEFAULT 0,
		longest_streak {int} NOT NULL DEFAULT 0,
		last_active    {ts}
	)`,

	`CREATE TABLE IF NOT EXISTS abuse_logs (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		reason     TEXT NOT NULL,
		severity   {float} NOT NULL,
		created_at {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_abuse_logs_user ON abuse_logs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_abuse_logs_created ON abuse_logs(created_at)`,
}
