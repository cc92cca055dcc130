package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmcleod/driftwood/session"
	"github.com/jmcleod/driftwood/tenant"
)

type contextKey int

const (
	sessionKey contextKey = iota
	tenantKey
)

// TenantMiddleware resolves the request Host to a tenant and stores it on
// the request context. Requests for unknown hosts never reach handlers.
func (s *Server) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := s.tenants.Resolve(r.Host)
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown host")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, t)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionMiddleware guarantees every request downstream carries a live
// session: a valid cookie is touched, anything else gets a fresh
// anonymous session. Creation races degrade to a re-read because Create
// is a no-op on conflict.
func (s *Server) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var sess *session.Session
		if c, err := r.Cookie(s.cfg.SessionCookie); err == nil && c.Value != "" {
			got, err := s.sessions.Get(ctx, c.Value)
			switch {
			case err == nil:
				if err := s.sessions.Touch(ctx, got.SID, s.cfg.IdleTimeout); err != nil {
					s.serverError(w, r, "session store unavailable", err)
					return
				}
				sess = got
			case !errors.Is(err, session.ErrNotFound):
				s.serverError(w, r, "session store unavailable", err)
				return
			}
		}

		if sess == nil {
			sid := session.NewSID()
			if err := s.sessions.Create(ctx, sid, s.cfg.IdleTimeout); err != nil {
				s.serverError(w, r, "session store unavailable", err)
				return
			}
			got, err := s.sessions.Get(ctx, sid)
			if err != nil {
				s.serverError(w, r, "session store unavailable", err)
				return
			}
			sess = got
			s.writeSessionCookie(w, r, sid)
		}

		ctx = context.WithValue(ctx, sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}

func tenantFromContext(ctx context.Context) *tenant.Tenant {
	t, _ := ctx.Value(tenantKey).(*tenant.Tenant)
	return t
}

func (s *Server) writeSessionCookie(w http.ResponseWriter, r *http.Request, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Secure || requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.IdleTimeout.Seconds()),
	})
}

// writeCSRFCookie sets the double-submit cookie. It is intentionally NOT
// HttpOnly so browser-side script can read it and echo it as a request
// header; the server never trusts the cookie alone.
func (s *Server) writeCSRFCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CSRFCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   s.cfg.Secure || requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
