package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "driftwood",
	Short: "Driftwood is a multi-tenant web platform core",
	Long: `Session lifecycle with anti-fixation rotation, derived CSRF tokens,
throttled password login, and server-push HTML views that transmit only
when their content changes.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
