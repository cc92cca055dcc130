package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/driftwood/internal/uuid"
)

// exclusionViolation is the Postgres error code raised when an insert
// collides with the email_addresses overlap exclusion constraint.
const exclusionViolation = "23P01"

// PostgresStore implements Store against the users / email_addresses /
// preferred_email_addresses tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UserByEmail(ctx context.Context, address string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.password_hash, u.created_at
		 FROM users u
		 JOIN email_addresses e ON e.user_id = u.id
		 WHERE e.address = $1 AND e.valid_to = 'infinity'`,
		address).Scan(&u.ID, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, address, passwordHash string) (*User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning create-user transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	u := &User{ID: uuid.New(), PasswordHash: passwordHash}
	err = tx.QueryRow(ctx,
		`INSERT INTO users (id, password_hash) VALUES ($1, $2) RETURNING created_at`,
		u.ID, u.PasswordHash).Scan(&u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	addressID := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO email_addresses (id, user_id, address, valid_from, valid_to)
		 VALUES ($1, $2, $3, now(), 'infinity')`,
		addressID, u.ID, address)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("inserting email address: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO preferred_email_addresses (user_id, email_address_id, valid_from, valid_to)
		 VALUES ($1, $2, now(), 'infinity')`,
		u.ID, addressID)
	if err != nil {
		return nil, fmt.Errorf("inserting preferred address: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing create-user transaction: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) PreferredEmail(ctx context.Context, userID string) (string, error) {
	var address string
	err := s.pool.QueryRow(ctx,
		`SELECT e.address
		 FROM preferred_email_addresses p
		 JOIN email_addresses e ON e.id = p.email_address_id
		 WHERE p.user_id = $1 AND p.valid_to = 'infinity'`,
		userID).Scan(&address)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying preferred email: %w", err)
	}
	return address, nil
}
