package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/driftwood/session"
)

// maintainCmd runs one reap cycle and exits, for cron-driven deployments
// that prefer external scheduling over the in-process timer.
var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Delete expired sessions and prune old authentication attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dsn == "" {
			return fmt.Errorf("maintain requires --postgres-dsn; in-memory stores have nothing to maintain")
		}
		ctx := cmd.Context()
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		st, err := openStores(ctx)
		if err != nil {
			return fmt.Errorf("opening stores: %w", err)
		}
		defer st.close()

		reaper := session.NewReaper(st.sessions, st.attempts, session.DefaultReapInterval, logger)
		reaper.ReapOnce(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(maintainCmd)
	maintainCmd.Flags().StringVar(&dsn, "postgres-dsn", os.Getenv("DRIFTWOOD_POSTGRES_DSN"), "PostgreSQL DSN")
}
