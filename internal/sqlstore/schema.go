package sqlstore

// schema is applied one statement at a time so it runs unchanged on
// PostgreSQL and SQLite. Timestamps are unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		platform       TEXT NOT NULL,
		external_id    TEXT NOT NULL,
		display_name   TEXT NOT NULL DEFAULT '',
		follower_count BIGINT NOT NULL DEFAULT 0,
		account_type   TEXT NOT NULL,
		entity_id      TEXT NOT NULL DEFAULT '',
		updated_at     BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (platform, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		platform      TEXT NOT NULL,
		post_id       TEXT NOT NULL,
		account_id    TEXT NOT NULL,
		post_type     TEXT NOT NULL,
		created_at    BIGINT NOT NULL DEFAULT 0,
		message       TEXT NOT NULL DEFAULT '',
		like_count    BIGINT NOT NULL DEFAULT 0,
		comment_count BIGINT NOT NULL DEFAULT 0,
		reshare_count BIGINT NOT NULL DEFAULT 0,
		updated_at    BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (platform, post_id)
	)`,
	`CREATE INDEX IF NOT EXISTS posts_account_idx ON posts (platform, account_id)`,
	`CREATE INDEX IF NOT EXISTS posts_type_idx ON posts (platform, post_type)`,
	`CREATE TABLE IF NOT EXISTS post_breakdown (
		platform TEXT NOT NULL,
		post_id  TEXT NOT NULL,
		metric   TEXT NOT NULL,
		value    BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (platform, post_id, metric)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		platform   TEXT NOT NULL,
		comment_id TEXT NOT NULL,
		post_id    TEXT NOT NULL,
		account_id TEXT NOT NULL,
		author     TEXT NOT NULL DEFAULT '',
		message    TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL DEFAULT 0,
		like_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (platform, comment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS score_snapshots (
		platform         TEXT NOT NULL,
		account_id       TEXT NOT NULL,
		result_date      TEXT NOT NULL,
		follower_count   BIGINT NOT NULL DEFAULT 0,
		view_count       BIGINT NOT NULL DEFAULT 0,
		engagement_index DOUBLE PRECISION,
		normalized       DOUBLE PRECISION,
		document         TEXT NOT NULL,
		computed_at      BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (platform, account_id, result_date)
	)`,
	`CREATE TABLE IF NOT EXISTS post_type_snapshots (
		platform         TEXT NOT NULL,
		post_type        TEXT NOT NULL,
		engagement_index DOUBLE PRECISION,
		normalized       DOUBLE PRECISION,
		document         TEXT NOT NULL,
		computed_at      BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (platform, post_type)
	)`,
	`CREATE TABLE IF NOT EXISTS composite_scores (
		entity_id  TEXT PRIMARY KEY,
		composite  DOUBLE PRECISION,
		document   TEXT NOT NULL,
		updated_at BIGINT NOT NULL DEFAULT 0
	)`,
}
