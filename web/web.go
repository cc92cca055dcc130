// Package web is the HTTP surface of the platform: login and signup
// forms, session and CSRF middleware, the live SSE stream, and the demo
// pages that exercise the broadcast engine.
package web

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimw "github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/driftwood/arena"
	"github.com/jmcleod/driftwood/auth"
	"github.com/jmcleod/driftwood/live"
	"github.com/jmcleod/driftwood/session"
	"github.com/jmcleod/driftwood/tenant"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config is the deployment-dependent knobs of the HTTP surface.
type Config struct {
	// Secure marks a TLS deployment: cookies get the __Host- prefix and
	// the Secure attribute unconditionally.
	Secure bool
	// SessionCookie and CSRFCookie override the default cookie names.
	SessionCookie string
	CSRFCookie    string
	// IdleTimeout is the session idle timeout applied on every touch.
	IdleTimeout time.Duration
	// TrustedProxies are the CIDR ranges whose forwarded-for headers are
	// believed. Empty means proxy headers are never consulted.
	TrustedProxies []netip.Prefix
}

func (c Config) withDefaults() Config {
	if c.SessionCookie == "" {
		c.SessionCookie = "driftwood_sid"
	}
	if c.CSRFCookie == "" {
		c.CSRFCookie = "driftwood_csrf"
	}
	if c.Secure {
		c.SessionCookie = "__Host-" + c.SessionCookie
		c.CSRFCookie = "__Host-" + c.CSRFCookie
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = session.DefaultIdleTimeout
	}
	return c
}

// Server holds the dependencies needed by the HTTP handlers.
type Server struct {
	cfg      Config
	flow     *auth.Flow
	sessions session.Store
	csrf     *session.CSRF
	tenants  tenant.Resolver
	engine   *live.Engine
	state    *arena.Arena
	views    map[string]live.View
	logger   *slog.Logger
	audit    *auditLogger
	alertFn  AlertFunc
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger for server errors and audit
// events. If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAlertFunc installs a callback for anomaly alerts (login failure
// spikes). Without it no spike detection runs.
func WithAlertFunc(fn AlertFunc) Option {
	return func(s *Server) {
		s.alertFn = fn
	}
}

// New creates the HTTP surface over its collaborators.
func New(cfg Config, flow *auth.Flow, sessions session.Store, csrf *session.CSRF, tenants tenant.Resolver, engine *live.Engine, state *arena.Arena, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg.withDefaults(),
		flow:     flow,
		sessions: sessions,
		csrf:     csrf,
		tenants:  tenants,
		engine:   engine,
		state:    state,
	}
	s.views = map[string]live.View{
		"counter":  counterView{state: state},
		"presence": presenceView{state: state},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.audit = newAuditLogger(s.logger)
	if s.alertFn != nil {
		s.audit.metrics = newMetricsCollector(s.alertFn)
	}
	return s
}

// Router returns a chi.Router with all routes mounted. Health and docs
// sit outside the tenant/session/CSRF chain so they stay reachable when
// the stores are down.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)

	r.Get("/healthz", s.Healthz)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", oapimw.SwaggerUI(oapimw.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))
	r.Handle("/redoc*", oapimw.Redoc(oapimw.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(s.TenantMiddleware)
		r.Use(s.SessionMiddleware)
		r.Use(s.CSRFMiddleware)

		r.Get("/", s.Home)
		r.Get("/login", s.LoginForm)
		r.Post("/login", s.Login)
		r.Post("/logout", s.Logout)
		r.Get("/signup", s.SignupForm)
		r.Post("/signup", s.Signup)

		r.Get("/stream", s.Stream)
		r.Post("/counter", s.IncrementCounter)
		r.Post("/cursor", s.MoveCursor)
	})

	return r
}
