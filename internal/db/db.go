package db

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

func Connect(connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the tables the relay server owns. Tasks, categories and
// context entries live in the backend API, not here.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			data        JSONB NOT NULL,
			expires_at  TIMESTAMPTZ,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id);

		CREATE TABLE IF NOT EXISTS analytics_events (
			id                BIGSERIAL PRIMARY KEY,
			event_name        TEXT NOT NULL,
			event_time        TIMESTAMPTZ NOT NULL,
			user_id           TEXT NOT NULL,
			session_id        TEXT,
			platform          TEXT,
			app_version       TEXT,
			device_locale     TEXT,
			source_event_key  TEXT UNIQUE,
			properties        JSONB NOT NULL DEFAULT '{}'::jsonb
		);
	`)
	return err
}
