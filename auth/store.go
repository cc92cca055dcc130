package auth

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no user holds the given address.
var ErrNotFound = errors.New("user not found")

// ErrEmailTaken is returned when another user actively holds the address.
var ErrEmailTaken = errors.New("email address already in use")

// User is a credential-store identity. The password hash is the encoded
// Argon2id string; everything else about a person lives elsewhere.
type User struct {
	ID           string
	PasswordHash string
	CreatedAt    time.Time
}

// EmailAddress binds an address to a user over a validity interval. An
// open-ended interval (ValidTo at infinity) is the currently active one.
type EmailAddress struct {
	ID        string
	UserID    string
	Address   string
	ValidFrom time.Time
	ValidTo   time.Time // zero value means open-ended
}

// Store persists users and their temporally-bound email addresses.
// Addresses passed in are expected in canonical form (util.CanonicalEmail).
type Store interface {
	// UserByEmail resolves the user actively holding the address.
	UserByEmail(ctx context.Context, address string) (*User, error)
	// CreateUser inserts a user with an active email interval and marks
	// the address as the user's preferred one.
	CreateUser(ctx context.Context, address, passwordHash string) (*User, error)
	// PreferredEmail returns the user's currently preferred address.
	PreferredEmail(ctx context.Context, userID string) (string, error)
}
