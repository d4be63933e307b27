package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps server sessions in the sessions table (see db.Migrate).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Load(ctx context.Context, key string) (*Session, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT data
		FROM sessions
		WHERE id = $1
	`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return unmarshalSession(data)
}

func (p *PostgresStore) Save(ctx context.Context, key string, s *Session) error {
	data, err := marshalSession(s)
	if err != nil {
		return err
	}

	var expires sql.NullTime
	if !s.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: s.ExpiresAt, Valid: true}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, data, expires_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
	`, key, s.User.ID, string(data), expires)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
