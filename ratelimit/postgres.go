package ratelimit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog implements Log against the authentication_attempts table.
type PostgresLog struct {
	pool *pgxpool.Pool
}

var _ Log = (*PostgresLog)(nil)

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

func (l *PostgresLog) RecordAttempt(ctx context.Context, email, ip string, success bool) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO authentication_attempts (email, ip_address, attempted_at, success)
		 VALUES ($1, $2, now(), $3)`,
		email, ip, success)
	if err != nil {
		return fmt.Errorf("recording authentication attempt: %w", err)
	}
	return nil
}

func (l *PostgresLog) Throttled(ctx context.Context, email, ip string) (*Throttle, error) {
	var byEmail, byIP int
	err := l.pool.QueryRow(ctx,
		`SELECT
		   count(*) FILTER (WHERE email = $1),
		   count(*) FILTER (WHERE ip_address = $2)
		 FROM authentication_attempts
		 WHERE NOT success AND attempted_at > now() - make_interval(secs => $3)`,
		email, ip, Window.Seconds()).Scan(&byEmail, &byIP)
	if err != nil {
		return nil, fmt.Errorf("counting authentication attempts: %w", err)
	}
	if byEmail >= EmailThreshold {
		return &Throttle{Reason: ReasonEmail, RetryAfter: Window}, nil
	}
	if byIP >= IPThreshold {
		return &Throttle{Reason: ReasonIP, RetryAfter: Window}, nil
	}
	return nil, nil
}

func (l *PostgresLog) DeleteOldAttempts(ctx context.Context) (int64, error) {
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM authentication_attempts WHERE attempted_at < now() - make_interval(secs => $1)`,
		Retention.Seconds())
	if err != nil {
		return 0, fmt.Errorf("pruning authentication attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
