package web

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/jmcleod/driftwood/session"
)

func TestSessionMiddlewareEnsuresSession(t *testing.T) {
	f := newFixture(t)
	ts, client := f.newClient(t)

	t.Run("CreatesOnFirstVisit", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("GET /: %v", err)
		}
		resp.Body.Close()
		sid := cookieValue(t, client, ts.URL, "driftwood_sid")
		if sid == "" {
			t.Fatal("first visit should set a session cookie")
		}
		if _, err := f.sessions.Get(t.Context(), sid); err != nil {
			t.Fatalf("cookie sid should be backed by a stored session: %v", err)
		}
	})

	t.Run("KeepsValidSession", func(t *testing.T) {
		before := cookieValue(t, client, ts.URL, "driftwood_sid")
		resp, err := client.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("GET /: %v", err)
		}
		resp.Body.Close()
		if after := cookieValue(t, client, ts.URL, "driftwood_sid"); after != before {
			t.Fatalf("valid sid should be kept, got %q -> %q", before, after)
		}
	})

	t.Run("TouchExtendsExpiry", func(t *testing.T) {
		sid := cookieValue(t, client, ts.URL, "driftwood_sid")
		before, err := f.sessions.Get(t.Context(), sid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		resp, err := client.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("GET /: %v", err)
		}
		resp.Body.Close()
		after, err := f.sessions.Get(t.Context(), sid)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if after.ExpiresAt.Before(before.ExpiresAt) {
			t.Fatal("each request should extend the session expiry")
		}
	})

	t.Run("ReplacesDeadSID", func(t *testing.T) {
		// Point the cookie at a sid the store never held, as after a
		// reap or a restart with memory stores.
		dead := session.NewSID()
		u, _ := url.Parse(ts.URL)
		client.Jar.SetCookies(u, []*http.Cookie{{Name: "driftwood_sid", Value: dead}})

		resp, err := client.Get(ts.URL + "/")
		if err != nil {
			t.Fatalf("GET /: %v", err)
		}
		resp.Body.Close()
		got := cookieValue(t, client, ts.URL, "driftwood_sid")
		if got == dead || got == "" {
			t.Fatalf("dead sid should be replaced, got %q", got)
		}
		if _, err := f.sessions.Get(t.Context(), got); err != nil {
			t.Fatalf("replacement session missing: %v", err)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t)
	ts, client := f.newClient(t)

	resp, err := client.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	got := resp.Header.Get("Content-Security-Policy")
	if got == "" {
		t.Fatal("CSP header missing")
	}
	// The stream and the forms depend on these directives.
	for _, directive := range []string{"connect-src 'self'", "form-action 'self'", "frame-ancestors 'none'"} {
		if !strings.Contains(got, directive) {
			t.Fatalf("CSP %q missing %q", got, directive)
		}
	}
}
