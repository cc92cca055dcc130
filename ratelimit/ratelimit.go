// Package ratelimit throttles authentication attempts from an append-only
// attempt log, counted over trailing windows per email and per source IP.
package ratelimit

import (
	"context"
	"time"
)

const (
	// Window is the trailing interval failed attempts are counted over.
	Window = 15 * time.Minute
	// EmailThreshold locks out an address after this many failures in Window.
	EmailThreshold = 5
	// IPThreshold locks out a source IP after this many failures in Window.
	IPThreshold = 20
	// Retention is how long attempt rows are kept before pruning.
	Retention = 24 * time.Hour
)

// Reason says which window tripped the throttle.
type Reason string

const (
	ReasonEmail Reason = "email"
	ReasonIP    Reason = "ip"
)

// Throttle is a non-nil throttling decision.
type Throttle struct {
	Reason     Reason
	RetryAfter time.Duration
}

// Attempt is one row of the append-only authentication attempt log. Rows
// are never updated; they are only counted and eventually pruned.
type Attempt struct {
	Email       string
	IP          string
	AttemptedAt time.Time
	Success     bool
}

// Log records attempts and decides throttling. Both implementations count
// only failed attempts; successes are logged for audit but never throttle.
type Log interface {
	// RecordAttempt appends one attempt row regardless of outcome.
	RecordAttempt(ctx context.Context, email, ip string, success bool) error
	// Throttled reports whether a new attempt for (email, ip) should be
	// refused. The email window is checked first; nil means proceed.
	Throttled(ctx context.Context, email, ip string) (*Throttle, error)
	// DeleteOldAttempts prunes rows older than Retention and returns the
	// number removed.
	DeleteOldAttempts(ctx context.Context) (int64, error)
}
