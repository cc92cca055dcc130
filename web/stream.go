package web

import (
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmcleod/driftwood/live"
)

// Stream opens a server-push event stream for one view. Each transmitted
// event carries the content hash as its id, which browsers echo back as
// Last-Event-ID on reconnect; an unchanged view then resumes silently.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeError(w, http.StatusNotAcceptable, "stream requires Accept: text/event-stream")
		return
	}
	viewName := r.URL.Query().Get("view")
	if viewName == "" {
		viewName = "counter"
	}
	view, ok := s.views[viewName]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown view")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("response writer does not support flushing", "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess := sessionFromContext(r.Context())

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")

	// One compressor per connection, flushed per event so the client sees
	// each update immediately.
	var out io.Writer = w
	var gz *gzip.Writer
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		h.Set("Content-Encoding", "gzip")
		gz = gzip.NewWriter(w)
		defer gz.Close()
		out = gz
	}
	w.WriteHeader(http.StatusOK)

	flush := func() error {
		if gz != nil {
			if err := gz.Flush(); err != nil {
				return err
			}
		}
		flusher.Flush()
		return nil
	}

	send := func(eventID, payload string) error {
		if _, err := fmt.Fprintf(out, "id: %s\n", eventID); err != nil {
			return err
		}
		for _, line := range strings.Split(payload, "\n") {
			if _, err := fmt.Fprintf(out, "data: %s\n", line); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(out, "\n"); err != nil {
			return err
		}
		return flush()
	}

	conn := live.NewConn(sess.SID, sess.UserID, view, r.Header.Get("Last-Event-ID"), send)

	// Tell the client its connection id before any event; the presence
	// endpoint keys cursors by it.
	if _, err := fmt.Fprintf(out, ": conn %s\n\n", conn.ID); err != nil {
		return
	}
	if err := flush(); err != nil {
		return
	}

	s.audit.log(AuditStreamOpened, r, slog.String("conn_id", conn.ID), slog.String("view", viewName))

	err := s.engine.Serve(r.Context(), conn)

	attrs := []slog.Attr{slog.String("conn_id", conn.ID), slog.String("view", viewName)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.audit.log(AuditStreamClosed, r, attrs...)
}
