package web

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmcleod/driftwood/live"
	"github.com/jmcleod/driftwood/session"
)

// streamRequest invokes the stream handler directly with a pre-cancelled
// context: the initial render is transmitted, then the serve loop exits
// immediately, so the recorder holds exactly the opening exchange.
func streamRequest(t *testing.T, f *fixture, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	sid := session.NewSID()
	if err := f.sessions.Create(t.Context(), sid, session.DefaultIdleTimeout); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, err := f.sessions.Get(t.Context(), sid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req = req.WithContext(context.WithValue(ctx, sessionKey, sess))

	rec := httptest.NewRecorder()
	f.srv.Stream(rec, req)
	return rec
}

func TestStreamInitialRender(t *testing.T) {
	f := newFixture(t)
	rec := streamRequest(t, f, "/stream?view=counter", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, ": conn ") {
		t.Fatalf("stream should open with the connection id comment, got %q", body)
	}
	if !strings.Contains(body, "id: ") || !strings.Contains(body, "data: ") {
		t.Fatalf("initial render missing, got %q", body)
	}
	if !strings.Contains(body, "counter-value") {
		t.Fatalf("counter fragment missing, got %q", body)
	}
}

func TestStreamResumeSuppressesInitialRender(t *testing.T) {
	f := newFixture(t)

	// Hash the fragment exactly as the engine will.
	content, err := (counterView{state: f.srv.state}).Render(t.Context())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	rec := streamRequest(t, f, "/stream?view=counter", http.Header{
		"Last-Event-Id": {live.ContentHash(content)},
	})

	body := rec.Body.String()
	if strings.Contains(body, "data: ") {
		t.Fatalf("unchanged resume should transmit nothing, got %q", body)
	}

	// A stale hash forces a fresh transmission.
	rec = streamRequest(t, f, "/stream?view=counter", http.Header{
		"Last-Event-Id": {"0123456789abcdef0123456789abcdef"},
	})
	if !strings.Contains(rec.Body.String(), "data: ") {
		t.Fatal("stale resume should transmit the current render")
	}
}

func TestStreamGzip(t *testing.T) {
	f := newFixture(t)
	rec := streamRequest(t, f, "/stream?view=presence", http.Header{
		"Accept-Encoding": {"gzip"},
	})

	if enc := rec.Header().Get("Content-Encoding"); enc != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", enc)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompressing stream: %v", err)
	}
	if !strings.Contains(string(raw), "cursors") {
		t.Fatalf("presence fragment missing, got %q", raw)
	}
}

func TestStreamRequiresEventStreamAccept(t *testing.T) {
	f := newFixture(t)

	sid := session.NewSID()
	if err := f.sessions.Create(t.Context(), sid, session.DefaultIdleTimeout); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, _ := f.sessions.Get(t.Context(), sid)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req = req.WithContext(context.WithValue(t.Context(), sessionKey, sess))
	rec := httptest.NewRecorder()
	f.srv.Stream(rec, req)
	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", rec.Code)
	}
}

func TestStreamUnknownView(t *testing.T) {
	f := newFixture(t)
	rec := streamRequest(t, f, "/stream?view=nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
