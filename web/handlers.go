package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmcleod/driftwood/auth"
)

// genericLoginBanner is shown for every credential failure. Unknown
// address and wrong password render byte-identical responses; the only
// distinguishable outcome is the throttle, which is deliberate.
const genericLoginBanner = "Invalid email address or password."

const throttledBanner = "Too many failed attempts. Try again later."

// Home renders the landing page with the live demo fragments inlined, so
// the first paint matches what the stream will diff against.
func (s *Server) Home(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	var email string
	if sess.Authenticated() {
		var err error
		email, err = s.flow.PreferredEmail(r.Context(), *sess.UserID)
		if err != nil {
			s.serverError(w, r, "account unavailable", err)
			return
		}
	}
	s.renderPage(w, http.StatusOK, "home.html", map[string]any{
		"Tenant":        tenantFromContext(r.Context()).Name,
		"Authenticated": sess.Authenticated(),
		"Email":         email,
		"CSRFToken":     s.csrf.Token(sess.SID),
		"Counter":       map[string]any{"Count": s.state.Counter()},
		"Presence":      map[string]any{"Cursors": s.state.Cursors()},
	})
}

func (s *Server) LoginForm(w http.ResponseWriter, r *http.Request) {
	s.renderLogin(w, r, http.StatusOK, "")
}

// Login runs the authentication flow and translates its outcome to HTTP.
// Success rotates the session, so both cookies are reissued before the
// redirect.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	res, err := s.flow.Login(r.Context(), sess.SID, email, password, s.clientIP(r))
	if err != nil {
		s.serverError(w, r, "login unavailable", err)
		return
	}

	switch res.Outcome {
	case auth.LoginOK:
		s.audit.log(AuditLoginSuccess, r, slog.String("user_id", res.UserID))
		s.writeSessionCookie(w, r, res.NewSID)
		s.writeCSRFCookie(w, r, s.csrf.Token(res.NewSID))
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case auth.LoginThrottled:
		s.audit.log(AuditLoginThrottled, r)
		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
		s.renderLogin(w, r, http.StatusTooManyRequests, throttledBanner)
	default:
		s.audit.log(AuditLoginFailure, r)
		// 200 with the re-rendered form: the failure page has the same
		// status and shape no matter why the credentials failed.
		s.renderLogin(w, r, http.StatusOK, genericLoginBanner)
	}
}

// Logout rotates the session onto a fresh anonymous sid and reissues
// both cookies; the old sid is dead either way.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	newSID, err := s.flow.Logout(r.Context(), sess.SID)
	if err != nil {
		s.serverError(w, r, "logout unavailable", err)
		return
	}
	attrs := []slog.Attr{}
	if sess.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *sess.UserID))
	}
	s.audit.log(AuditLogout, r, attrs...)
	s.writeSessionCookie(w, r, newSID)
	s.writeCSRFCookie(w, r, s.csrf.Token(newSID))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) SignupForm(w http.ResponseWriter, r *http.Request) {
	s.renderSignup(w, r, http.StatusOK, "")
}

func (s *Server) Signup(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := s.flow.SignUp(r.Context(), email, password)
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
		s.renderSignup(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, auth.ErrEmailTaken):
		s.renderSignup(w, r, http.StatusConflict, "That address is already in use.")
		return
	case err != nil:
		s.serverError(w, r, "signup unavailable", err)
		return
	}

	s.audit.log(AuditSignup, r, slog.String("user_id", user.ID))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// IncrementCounter mutates the shared counter and wakes every open
// stream. Connections showing stale content transmit; the rest stay
// quiet because their hash is unchanged.
func (s *Server) IncrementCounter(w http.ResponseWriter, r *http.Request) {
	if _, err := s.state.Increment(); err != nil {
		s.serverError(w, r, "counter unavailable", err)
		return
	}
	s.engine.Notify()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// MoveCursor records a presence cursor keyed by the stream connection id
// the client received when its presence stream opened.
func (s *Server) MoveCursor(w http.ResponseWriter, r *http.Request) {
	connID := r.PostFormValue("conn_id")
	if connID == "" {
		writeError(w, http.StatusBadRequest, "missing conn_id")
		return
	}
	x, err := strconv.Atoi(r.PostFormValue("x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid x")
		return
	}
	y, err := strconv.Atoi(r.PostFormValue("y"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid y")
		return
	}
	if err := s.state.SetCursor(connID, r.PostFormValue("label"), x, y); err != nil {
		s.serverError(w, r, "presence unavailable", err)
		return
	}
	s.engine.Notify()
	w.WriteHeader(http.StatusNoContent)
}

// Healthz reports liveness without touching the tenant, session or auth
// machinery, so it keeps answering while the stores are down.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"open_streams": s.engine.Registry().Len(),
	})
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, banner string) {
	sess := sessionFromContext(r.Context())
	s.renderPage(w, status, "login.html", map[string]any{
		"Tenant":    tenantFromContext(r.Context()).Name,
		"CSRFToken": s.csrf.Token(sess.SID),
		"Banner":    banner,
	})
}

func (s *Server) renderSignup(w http.ResponseWriter, r *http.Request, status int, banner string) {
	sess := sessionFromContext(r.Context())
	s.renderPage(w, status, "signup.html", map[string]any{
		"Tenant":    tenantFromContext(r.Context()).Name,
		"CSRFToken": s.csrf.Token(sess.SID),
		"Banner":    banner,
	})
}
