// Package session persists server-side sessions and derives the CSRF
// tokens bound to them.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/jmcleod/driftwood/internal/util"
)

// ErrNotFound is returned by Get when no live session holds the sid.
var ErrNotFound = errors.New("session not found")

// DefaultIdleTimeout is how long a session survives without being touched.
const DefaultIdleTimeout = 30 * 24 * time.Hour

// sidBytes is the entropy of a session id: 160 bits.
const sidBytes = 20

// Session is one server-side session row. UserID is nil for anonymous
// sessions. ExpiresAt is always AccessedAt plus the idle timeout.
type Session struct {
	SID        string
	UserID     *string
	CreatedAt  time.Time
	AccessedAt time.Time
	ExpiresAt  time.Time
	Data       map[string]string
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != nil
}

// NewSID returns a fresh session id: 20 random bytes, URL-safe base64.
func NewSID() string {
	return base64.RawURLEncoding.EncodeToString(util.MustRandomBytes(sidBytes))
}

// Store is CRUD over session rows. Writes against a sid that no longer
// exists are no-ops, never errors: session maintenance runs on every
// request and must not fail request handling over a lost race.
type Store interface {
	// Get returns the session, or ErrNotFound if absent or expired.
	Get(ctx context.Context, sid string) (*Session, error)
	// Create inserts a new anonymous session. A concurrent insert of the
	// same sid degrades to a no-op; the caller re-reads with Get.
	Create(ctx context.Context, sid string, idleTimeout time.Duration) error
	// Touch marks the session accessed now and extends its expiry.
	Touch(ctx context.Context, sid string, idleTimeout time.Duration) error
	// UpdateData replaces the opaque session data and extends expiry.
	UpdateData(ctx context.Context, sid string, data map[string]string, idleTimeout time.Duration) error
	// Rotate atomically replaces the old session with a fresh one bound
	// to userID (nil for anonymous) and returns the new sid. This is the
	// anti-fixation primitive: it runs on every privilege change.
	Rotate(ctx context.Context, oldSID string, userID *string, idleTimeout time.Duration) (string, error)
	// ClearUser detaches the user from the session in place, keeping the
	// sid. Weaker than Rotate; kept for callers that need it.
	ClearUser(ctx context.Context, sid string, idleTimeout time.Duration) error
	// Delete removes the session.
	Delete(ctx context.Context, sid string) error
	// DeleteExpired removes every expired session and returns the count.
	DeleteExpired(ctx context.Context) (int64, error)
}
