package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against the sessions table. All
// operations are single statements except Rotate, which needs the
// insert+delete pair to commit atomically.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, sid string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT sid, user_id, created_at, accessed_at, expires_at, data
		 FROM sessions WHERE sid = $1 AND expires_at > now()`,
		sid).Scan(&sess.SID, &sess.UserID, &sess.CreatedAt, &sess.AccessedAt, &sess.ExpiresAt, &sess.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) Create(ctx context.Context, sid string, idleTimeout time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (sid, created_at, accessed_at, expires_at, data)
		 VALUES ($1, now(), now(), now() + make_interval(secs => $2), '{}'::jsonb)
		 ON CONFLICT (sid) DO NOTHING`,
		sid, idleTimeout.Seconds())
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, sid string, idleTimeout time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET accessed_at = now(), expires_at = now() + make_interval(secs => $2)
		 WHERE sid = $1`,
		sid, idleTimeout.Seconds())
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateData(ctx context.Context, sid string, data map[string]string, idleTimeout time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET data = $2, accessed_at = now(), expires_at = now() + make_interval(secs => $3)
		 WHERE sid = $1`,
		sid, data, idleTimeout.Seconds())
	if err != nil {
		return fmt.Errorf("updating session data: %w", err)
	}
	return nil
}

func (s *PostgresStore) Rotate(ctx context.Context, oldSID string, userID *string, idleTimeout time.Duration) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	newSID := NewSID()
	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (sid, user_id, created_at, accessed_at, expires_at, data)
		 VALUES ($1, $2, now(), now(), now() + make_interval(secs => $3), '{}'::jsonb)`,
		newSID, userID, idleTimeout.Seconds())
	if err != nil {
		return "", fmt.Errorf("inserting rotated session: %w", err)
	}
	// Deleting a row the reaper already removed is fine; the insert is
	// what must never be lost.
	_, err = tx.Exec(ctx, `DELETE FROM sessions WHERE sid = $1`, oldSID)
	if err != nil {
		return "", fmt.Errorf("deleting pre-rotation session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing rotation: %w", err)
	}
	return newSID, nil
}

func (s *PostgresStore) ClearUser(ctx context.Context, sid string, idleTimeout time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET user_id = NULL, accessed_at = now(), expires_at = now() + make_interval(secs => $2)
		 WHERE sid = $1`,
		sid, idleTimeout.Seconds())
	if err != nil {
		return fmt.Errorf("clearing session user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, sid string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE sid = $1`, sid)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
