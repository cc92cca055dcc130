package web

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmcleod/driftwood/arena"
	"github.com/jmcleod/driftwood/auth"
	"github.com/jmcleod/driftwood/live"
	"github.com/jmcleod/driftwood/ratelimit"
	"github.com/jmcleod/driftwood/session"
	"github.com/jmcleod/driftwood/tenant"
)

var errStoreDown = errors.New("connection refused")

type failingSessionStore struct{}

func (failingSessionStore) Get(context.Context, string) (*session.Session, error) {
	return nil, errStoreDown
}

func (failingSessionStore) Create(context.Context, string, time.Duration) error {
	return errStoreDown
}

func (failingSessionStore) Touch(context.Context, string, time.Duration) error {
	return errStoreDown
}

func (failingSessionStore) UpdateData(context.Context, string, map[string]string, time.Duration) error {
	return errStoreDown
}

func (failingSessionStore) Rotate(context.Context, string, *string, time.Duration) (string, error) {
	return "", errStoreDown
}

func (failingSessionStore) ClearUser(context.Context, string, time.Duration) error {
	return errStoreDown
}

func (failingSessionStore) Delete(context.Context, string) error {
	return errStoreDown
}

func (failingSessionStore) DeleteExpired(context.Context) (int64, error) {
	return 0, errStoreDown
}

type failingAttemptLog struct{}

func (failingAttemptLog) RecordAttempt(context.Context, string, string, bool) error {
	return errStoreDown
}

func (failingAttemptLog) Throttled(context.Context, string, string) (*ratelimit.Throttle, error) {
	return nil, errStoreDown
}

func (failingAttemptLog) DeleteOldAttempts(context.Context) (int64, error) {
	return 0, errStoreDown
}

// newFailureFixture wires the server over the given stores with a logger
// captured into a buffer, so tests can assert what reached the log.
func newFailureFixture(t *testing.T, sessions session.Store, attempts ratelimit.Log) (*Server, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	hasher := auth.NewHasher(auth.Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32})
	flow := auth.NewFlow(auth.NewMemoryStore(), hasher, attempts, sessions, time.Hour, logger)

	state, err := arena.Open(filepath.Join(t.TempDir(), "arena.db"), logger)
	if err != nil {
		t.Fatalf("opening arena: %v", err)
	}
	t.Cleanup(func() { state.Close() })

	resolver := tenant.NewStaticResolver(
		tenant.Tenant{ID: "t1", Name: "Acme", Host: "127.0.0.1"},
	)

	srv := New(Config{IdleTimeout: time.Hour},
		flow, sessions, session.NewCSRF([]byte("test-csrf-key")),
		resolver, live.NewEngine(logger), state,
		WithLogger(logger))
	return srv, &buf
}

// Store outages must answer the client with a generic 500 while the full
// error lands in the server log, never in the response body.
func TestStoreFailuresAreLogged(t *testing.T) {
	t.Run("SessionStore", func(t *testing.T) {
		srv, buf := newFailureFixture(t, failingSessionStore{}, ratelimit.NewMemoryLog())
		f := &fixture{srv: srv}
		ts, client := f.newClient(t)

		resp, err := client.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("GET /: %v", err)
		}
		body := readBody(t, resp)
		if resp.StatusCode != 500 {
			t.Fatalf("status = %d, want 500", resp.StatusCode)
		}
		if strings.Contains(body, errStoreDown.Error()) {
			t.Fatalf("error detail leaked to the client: %q", body)
		}
		if !strings.Contains(buf.String(), errStoreDown.Error()) {
			t.Fatalf("underlying error missing from the server log:\n%s", buf.String())
		}
	})

	t.Run("LoginFlow", func(t *testing.T) {
		srv, buf := newFailureFixture(t, session.NewMemoryStore(), failingAttemptLog{})
		f := &fixture{srv: srv}
		ts, client := f.newClient(t)
		_, token := prime(t, client, ts.URL)
		buf.Reset()

		resp := postForm(t, client, ts.URL+"/login", url.Values{
			"email":    {"alice@example.com"},
			"password": {"wrong password!"},
			"_csrf":    {token},
		})
		body := readBody(t, resp)
		if resp.StatusCode != 500 {
			t.Fatalf("status = %d, want 500", resp.StatusCode)
		}
		if strings.Contains(body, errStoreDown.Error()) {
			t.Fatalf("error detail leaked to the client: %q", body)
		}
		log := buf.String()
		if !strings.Contains(log, errStoreDown.Error()) || !strings.Contains(log, "login unavailable") {
			t.Fatalf("login failure missing from the server log:\n%s", log)
		}
	})
}
