package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pgclaw/internal/config"
	"github.com/nextlevelbuilder/pgclaw/internal/migration"
	"github.com/nextlevelbuilder/pgclaw/internal/service"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import legacy agent data",
	}
	cmd.AddCommand(migrateSQLiteCmd())
	cmd.AddCommand(migrateSessionsCmd())
	cmd.AddCommand(migrateTranscriptsCmd())
	return cmd
}

func withState(ctx context.Context, run func(*service.State) error) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	state, err := service.New(ctx, settings)
	if err != nil {
		return err
	}
	defer state.Close()
	return run(state)
}

func migrateSQLiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sqlite [path]",
		Short: "Import a legacy sqlite memory database (discovers them when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = migration.FindSQLiteDBs("")
				if len(paths) == 0 {
					return fmt.Errorf("no sqlite memory databases found")
				}
			}
			return withState(cmd.Context(), func(state *service.State) error {
				for _, path := range paths {
					status, err := state.Migrations.RunSQLite(cmd.Context(), path)
					if err != nil {
						return err
					}
					printSQLiteStatus(path, status)
				}
				return nil
			})
		},
	}
}

func printSQLiteStatus(path string, status migration.SQLiteStatus) {
	fmt.Printf("%s: %s (files %d/%d, chunks %d/%d, cache %d/%d)\n",
		path, status.State,
		status.FilesMigrated, status.FilesTotal,
		status.ChunksMigrated, status.ChunksTotal,
		status.CacheMigrated, status.CacheTotal)
	for _, e := range status.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
}

func migrateSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <path>",
		Short: "Import a legacy sessions.json export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(state *service.State) error {
				if err := state.Migrations.StartSessions(args[0]); err != nil {
					return err
				}
				// Started in the background; poll until it leaves running.
				return waitSessions(cmd.Context(), state)
			})
		},
	}
}

func waitSessions(ctx context.Context, state *service.State) error {
	for {
		status := state.Migrations.Status().Sessions
		if status.State != migration.StateRunning {
			fmt.Printf("sessions: %s (%d/%d)\n", status.State, status.SessionsMigrated, status.SessionsTotal)
			for _, e := range status.Errors {
				fmt.Fprintf(os.Stderr, "  error: %s\n", e)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func migrateTranscriptsCmd() *cobra.Command {
	var dir bool
	cmd := &cobra.Command{
		Use:   "transcripts <path>",
		Short: "Import legacy JSONL transcripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(cmd.Context(), func(state *service.State) error {
				if err := state.Migrations.StartTranscripts(args[0], dir); err != nil {
					return err
				}
				return waitTranscripts(cmd.Context(), state)
			})
		},
	}
	cmd.Flags().BoolVar(&dir, "dir", false, "treat path as a directory of JSONL files")
	return cmd
}

func waitTranscripts(ctx context.Context, state *service.State) error {
	for {
		status := state.Migrations.Status().Transcripts
		if status.State != migration.StateRunning {
			fmt.Printf("transcripts: %s (files %d/%d, events %d/%d)\n",
				status.State, status.FilesProcessed, status.FilesTotal,
				status.EventsMigrated, status.EventsTotal)
			for _, e := range status.Errors {
				fmt.Fprintf(os.Stderr, "  error: %s\n", e)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
