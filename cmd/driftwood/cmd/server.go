package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jmcleod/driftwood/arena"
	"github.com/jmcleod/driftwood/auth"
	"github.com/jmcleod/driftwood/db"
	"github.com/jmcleod/driftwood/internal/util"
	"github.com/jmcleod/driftwood/live"
	"github.com/jmcleod/driftwood/ratelimit"
	"github.com/jmcleod/driftwood/session"
	"github.com/jmcleod/driftwood/tenant"
	"github.com/jmcleod/driftwood/web"
)

var (
	port           int
	dsn            string
	dataDir        string
	csrfSecret     string
	secure         bool
	sessionCookie  string
	csrfCookie     string
	tlsCert        string
	tlsKey         string
	idleTimeout    time.Duration
	reapInterval   time.Duration
	tenantSpecs    []string
	trustedProxies []string
)

// stores bundles the persistence layer behind the handlers. With a DSN
// everything shares one Postgres pool; without one the in-memory
// implementations serve development and tests.
type stores struct {
	sessions session.Store
	users    auth.Store
	attempts ratelimit.Log
	pool     *pgxpool.Pool
}

func (s *stores) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStores(ctx context.Context) (*stores, error) {
	if dsn == "" {
		return &stores{
			sessions: session.NewMemoryStore(),
			users:    auth.NewMemoryStore(),
			attempts: ratelimit.NewMemoryLog(),
		}, nil
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &stores{
		sessions: session.NewPostgresStore(pool),
		users:    auth.NewPostgresStore(pool),
		attempts: ratelimit.NewPostgresLog(pool),
		pool:     pool,
	}, nil
}

func parseTenants() (*tenant.StaticResolver, error) {
	resolver := tenant.NewStaticResolver()
	for i, spec := range tenantSpecs {
		host, name, ok := strings.Cut(spec, "=")
		if !ok || host == "" {
			return nil, fmt.Errorf("invalid --tenant %q, want host=name", spec)
		}
		resolver.Add(tenant.Tenant{
			ID:   fmt.Sprintf("tenant-%d", i+1),
			Name: name,
			Host: host,
		})
	}
	return resolver, nil
}

func parseTrustedProxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(trustedProxies))
	for _, raw := range trustedProxies {
		p, err := netip.ParsePrefix(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid --trusted-proxy %q: %w", raw, err)
		}
		out = append(out, p)
	}
	return out, nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the platform HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		st, err := openStores(ctx)
		if err != nil {
			return fmt.Errorf("opening stores: %w", err)
		}
		defer st.close()

		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		state, err := arena.Open(dataDir+"/arena.db", logger)
		if err != nil {
			return fmt.Errorf("opening arena state: %w", err)
		}
		defer state.Close()

		key := []byte(csrfSecret)
		if len(key) == 0 {
			// Tokens derived from an ephemeral key do not survive a
			// restart; fine for development, set the flag in production.
			key = util.MustRandomBytes(32)
			logger.Warn("no CSRF secret configured, using an ephemeral key")
		}
		csrf := session.NewCSRF(key)
		util.WipeBytes(key)

		resolver, err := parseTenants()
		if err != nil {
			return err
		}
		proxies, err := parseTrustedProxies()
		if err != nil {
			return err
		}

		flow := auth.NewFlow(st.users, auth.NewHasher(auth.DefaultArgon2idParams()), st.attempts, st.sessions, idleTimeout, logger)
		engine := live.NewEngine(logger)

		srv := web.New(web.Config{
			Secure:         secure || tlsCert != "",
			SessionCookie:  sessionCookie,
			CSRFCookie:     csrfCookie,
			IdleTimeout:    idleTimeout,
			TrustedProxies: proxies,
		}, flow, st.sessions, csrf, resolver, engine, state, web.WithLogger(logger))

		reaper := session.NewReaper(st.sessions, st.attempts, reapInterval, logger)
		go reaper.Run(ctx)

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if tlsCert != "" && tlsKey != "" {
				err = server.ListenAndServeTLS(tlsCert, tlsKey)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server started", "port", port, "data_dir", dataDir, "postgres", dsn != "", "tls", tlsCert != "")

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dsn, "postgres-dsn", os.Getenv("DRIFTWOOD_POSTGRES_DSN"), "PostgreSQL DSN (empty: in-memory stores)")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent demo state")
	serverCmd.Flags().StringVar(&csrfSecret, "csrf-secret", os.Getenv("DRIFTWOOD_CSRF_SECRET"), "Server CSRF key (empty: ephemeral)")
	serverCmd.Flags().BoolVar(&secure, "secure", false, "TLS deployment: __Host- cookies and the Secure attribute")
	serverCmd.Flags().StringVar(&sessionCookie, "session-cookie", "", "Session cookie name override")
	serverCmd.Flags().StringVar(&csrfCookie, "csrf-cookie", "", "CSRF cookie name override")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", session.DefaultIdleTimeout, "Session idle timeout")
	serverCmd.Flags().DurationVar(&reapInterval, "reap-interval", session.DefaultReapInterval, "Interval between maintenance cycles")
	serverCmd.Flags().StringArrayVar(&tenantSpecs, "tenant", []string{"localhost=Driftwood"}, "Tenant as host=name (repeatable)")
	serverCmd.Flags().StringArrayVar(&trustedProxies, "trusted-proxy", nil, "CIDR of a proxy whose forwarded headers are trusted (repeatable)")
}
