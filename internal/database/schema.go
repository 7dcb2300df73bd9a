package database

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         UUID PRIMARY KEY,
		username   TEXT NOT NULL UNIQUE,
		password   TEXT NOT NULL,
		money      BIGINT NOT NULL DEFAULT 1000 CHECK (money >= 0),
		wins       INTEGER NOT NULL DEFAULT 0,
		losses     INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id            BIGSERIAL PRIMARY KEY,
		user_id       UUID NOT NULL REFERENCES users(id),
		bet           BIGINT NOT NULL CHECK (bet > 0),
		payout        BIGINT NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'active',
		initial_state JSONB,
		final_state   JSONB,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at   TIMESTAMPTZ
	)`,
	`ALTER TABLE games ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
	`CREATE INDEX IF NOT EXISTS games_user_id_idx ON games (user_id, id DESC)`,
	`CREATE INDEX IF NOT EXISTS games_active_idx ON games (updated_at) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS game_actions (
		id             BIGSERIAL PRIMARY KEY,
		game_id        BIGINT NOT NULL REFERENCES games(id),
		action_index   INTEGER NOT NULL,
		actor_user_id  UUID NOT NULL,
		action_type    TEXT NOT NULL,
		action_payload JSONB,
		created_at     TIMESTAMPTZ NOT NULL,
		UNIQUE (game_id, action_index)
	)`,
}

// SQLite stores timestamps as unix milliseconds and JSON as TEXT.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL UNIQUE,
		password   TEXT NOT NULL,
		money      INTEGER NOT NULL DEFAULT 1000 CHECK (money >= 0),
		wins       INTEGER NOT NULL DEFAULT 0,
		losses     INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       TEXT NOT NULL REFERENCES users(id),
		bet           INTEGER NOT NULL CHECK (bet > 0),
		payout        INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'active',
		initial_state TEXT,
		final_state   TEXT,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL,
		finished_at   INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS games_user_id_idx ON games (user_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS game_actions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id        INTEGER NOT NULL REFERENCES games(id),
		action_index   INTEGER NOT NULL,
		actor_user_id  TEXT NOT NULL,
		action_type    TEXT NOT NULL,
		action_payload TEXT,
		created_at     INTEGER NOT NULL,
		UNIQUE (game_id, action_index)
	)`,
}
