package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLog is the in-memory Log used in tests and development. The
// now func is injectable so window boundaries can be tested exactly.
type MemoryLog struct {
	mu       sync.Mutex
	attempts []Attempt
	now      func() time.Time
}

var _ Log = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{now: time.Now}
}

// NewMemoryLogAt returns a MemoryLog reading time from now.
func NewMemoryLogAt(now func() time.Time) *MemoryLog {
	return &MemoryLog{now: now}
}

func (l *MemoryLog) RecordAttempt(_ context.Context, email, ip string, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, Attempt{
		Email:       email,
		IP:          ip,
		AttemptedAt: l.now(),
		Success:     success,
	})
	return nil
}

func (l *MemoryLog) Throttled(_ context.Context, email, ip string) (*Throttle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-Window)
	var byEmail, byIP int
	for _, a := range l.attempts {
		if a.Success || a.AttemptedAt.Before(cutoff) {
			continue
		}
		if a.Email == email {
			byEmail++
		}
		if a.IP == ip {
			byIP++
		}
	}
	if byEmail >= EmailThreshold {
		return &Throttle{Reason: ReasonEmail, RetryAfter: Window}, nil
	}
	if byIP >= IPThreshold {
		return &Throttle{Reason: ReasonIP, RetryAfter: Window}, nil
	}
	return nil, nil
}

func (l *MemoryLog) DeleteOldAttempts(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-Retention)
	kept := l.attempts[:0]
	var removed int64
	for _, a := range l.attempts {
		if a.AttemptedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	l.attempts = kept
	return removed, nil
}
