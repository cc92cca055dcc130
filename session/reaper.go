package session

import (
	"context"
	"log/slog"
	"time"
)

// AttemptPruner is the slice of the rate limiter the reaper needs. The
// attempt log and expired sessions are pruned on the same schedule.
type AttemptPruner interface {
	DeleteOldAttempts(ctx context.Context) (int64, error)
}

// Reaper periodically deletes expired sessions and old authentication
// attempts. It runs on its own timer, never on a request goroutine, and a
// cycle that overruns the interval causes later ticks to be dropped by
// the ticker — two cycles never run concurrently.
type Reaper struct {
	sessions Store
	attempts AttemptPruner
	interval time.Duration
	logger   *slog.Logger
}

// DefaultReapInterval matches the production schedule.
const DefaultReapInterval = time.Hour

func NewReaper(sessions Store, attempts AttemptPruner, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{
		sessions: sessions,
		attempts: attempts,
		interval: interval,
		logger:   logger.With("component", "reaper"),
	}
}

// Run blocks, reaping every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(ctx)
		}
	}
}

// ReapOnce performs a single maintenance cycle. Failures are logged and
// swallowed; the next cycle retries.
func (r *Reaper) ReapOnce(ctx context.Context) {
	start := time.Now()
	sessions, err := r.sessions.DeleteExpired(ctx)
	if err != nil {
		r.logger.Error("deleting expired sessions", "error", err)
	}
	var attempts int64
	if r.attempts != nil {
		attempts, err = r.attempts.DeleteOldAttempts(ctx)
		if err != nil {
			r.logger.Error("pruning authentication attempts", "error", err)
		}
	}
	r.logger.Info("reap cycle complete",
		"expired_sessions", sessions,
		"pruned_attempts", attempts,
		"elapsed", time.Since(start))
}
