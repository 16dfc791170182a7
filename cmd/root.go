// Package cmd implements the pgclaw CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pgclaw",
		Short:         "Memory persistence sidecar backed by Postgres + pgvector",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(initCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(migrateCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
