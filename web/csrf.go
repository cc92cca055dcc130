package web

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

const (
	csrfFormField  = "_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware enforces CSRF protection for mutating requests. The
// expected token is derived from the sid, so there is nothing to store
// and rotation invalidates outstanding tokens automatically.
//
// Safe methods pass through, as do event-stream requests: SSE cannot
// mutate state and EventSource cannot set custom headers. On every pass
// the double-submit cookie is refreshed if it no longer matches the
// token derived for the current sid.
func (s *Server) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFromContext(r.Context())
		want := s.csrf.Token(sess.SID)

		if c, err := r.Cookie(s.cfg.CSRFCookie); err != nil || c.Value != want {
			s.writeCSRFCookie(w, r, want)
		}

		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			next.ServeHTTP(w, r)
			return
		}

		presented := r.Header.Get(csrfHeaderName)
		if presented == "" {
			presented = r.PostFormValue(csrfFormField)
		}
		if !s.csrf.Verify(sess.SID, presented) {
			// Log the request shape only, never submitted values.
			s.audit.log(AuditCSRFRejected, r,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("form_keys", formKeys(r)),
			)
			writeError(w, http.StatusForbidden, "request could not be validated")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func formKeys(r *http.Request) string {
	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
