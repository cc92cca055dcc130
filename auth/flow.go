package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/driftwood/internal/util"
	"github.com/jmcleod/driftwood/ratelimit"
	"github.com/jmcleod/driftwood/secret"
	"github.com/jmcleod/driftwood/session"
)

// minPasswordLen is the minimum password length accepted at sign-up.
const minPasswordLen = 10

// ErrWeakPassword is returned by SignUp for passwords under the minimum.
var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", minPasswordLen)

// ErrInvalidEmail is returned by SignUp for addresses that cannot be one.
var ErrInvalidEmail = errors.New("invalid email address")

// LoginOutcome is the closed set of login results. Expected failures are
// values, not errors; only store/KDF faults surface as errors.
type LoginOutcome int

const (
	LoginOK LoginOutcome = iota
	LoginInvalid
	LoginThrottled
)

// LoginResult is what a login attempt produced. NewSID and UserID are set
// only on LoginOK; RetryAfter only on LoginThrottled.
type LoginResult struct {
	Outcome    LoginOutcome
	NewSID     string
	UserID     string
	RetryAfter time.Duration
}

// Flow composes the credential store, password verifier, rate limiter and
// session store into the login/logout orchestration.
type Flow struct {
	users       Store
	verifier    Verifier
	attempts    ratelimit.Log
	sessions    session.Store
	idleTimeout time.Duration
	logger      *slog.Logger
}

func NewFlow(users Store, verifier Verifier, attempts ratelimit.Log, sessions session.Store, idleTimeout time.Duration, logger *slog.Logger) *Flow {
	if idleTimeout <= 0 {
		idleTimeout = session.DefaultIdleTimeout
	}
	return &Flow{
		users:       users,
		verifier:    verifier,
		attempts:    attempts,
		sessions:    sessions,
		idleTimeout: idleTimeout,
		logger:      logger.With("component", "auth"),
	}
}

// Login authenticates the submitted credentials against the session
// identified by sid. The order is load-bearing:
//
//  1. throttle check runs before any KDF work, so throttled requests
//     never amplify verification cost;
//  2. verification always runs — against the real hash when the user
//     exists, against the dummy hash when not — so response time does
//     not reveal whether an account exists;
//  3. the attempt is recorded after verification, on every path;
//  4. success rotates the session atomically onto the user.
func (f *Flow) Login(ctx context.Context, sid, email, password, ip string) (LoginResult, error) {
	email = util.CanonicalEmail(email)

	th, err := f.attempts.Throttled(ctx, email, ip)
	if err != nil {
		return LoginResult{}, fmt.Errorf("checking throttle state: %w", err)
	}
	if th != nil {
		f.logger.Info("login throttled", "email", email, "reason", string(th.Reason))
		return LoginResult{Outcome: LoginThrottled, RetryAfter: th.RetryAfter}, nil
	}

	pw := secret.FromString(password)
	defer pw.Destroy()

	var ok bool
	user, err := f.users.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		if derr := f.verifier.VerifyDummy(pw); derr != nil {
			return LoginResult{}, fmt.Errorf("dummy verification: %w", derr)
		}
	case err != nil:
		return LoginResult{}, fmt.Errorf("looking up user: %w", err)
	default:
		var needsRehash bool
		ok, needsRehash, err = f.verifier.Verify(pw, user.PasswordHash)
		if err != nil {
			return LoginResult{}, fmt.Errorf("verifying password: %w", err)
		}
		if needsRehash {
			f.logger.Info("password hash uses outdated parameters", "user_id", user.ID)
		}
	}

	if rerr := f.attempts.RecordAttempt(ctx, email, ip, ok); rerr != nil {
		return LoginResult{}, fmt.Errorf("recording attempt: %w", rerr)
	}

	if !ok {
		f.logger.Info("login failed", "email", email)
		return LoginResult{Outcome: LoginInvalid}, nil
	}

	newSID, err := f.sessions.Rotate(ctx, sid, &user.ID, f.idleTimeout)
	if err != nil {
		return LoginResult{}, fmt.Errorf("rotating session: %w", err)
	}
	f.logger.Info("login succeeded", "user_id", user.ID)
	return LoginResult{Outcome: LoginOK, NewSID: newSID, UserID: user.ID}, nil
}

// Logout rotates the session onto a fresh anonymous sid. Rotation, not an
// in-place user clear: a sid that once carried a privileged session never
// remains valid afterwards.
func (f *Flow) Logout(ctx context.Context, sid string) (string, error) {
	newSID, err := f.sessions.Rotate(ctx, sid, nil, f.idleTimeout)
	if err != nil {
		return "", fmt.Errorf("rotating session on logout: %w", err)
	}
	return newSID, nil
}

// PreferredEmail returns the address the UI shows for the user.
func (f *Flow) PreferredEmail(ctx context.Context, userID string) (string, error) {
	address, err := f.users.PreferredEmail(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("looking up preferred email: %w", err)
	}
	return address, nil
}

// SignUp creates a user with an active email interval. The address must
// not be actively held by anyone else; ErrEmailTaken propagates.
func (f *Flow) SignUp(ctx context.Context, email, password string) (*User, error) {
	email = util.CanonicalEmail(email)
	if !strings.Contains(email, "@") || len(email) < 3 {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	pw := secret.FromString(password)
	defer pw.Destroy()
	hash, err := f.verifier.Derive(pw)
	if err != nil {
		return nil, fmt.Errorf("deriving password hash: %w", err)
	}
	user, err := f.users.CreateUser(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	f.logger.Info("user created", "user_id", user.ID)
	return user, nil
}
