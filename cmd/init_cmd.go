package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pgclaw/internal/config"
	"github.com/nextlevelbuilder/pgclaw/internal/store/pg"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			db, err := pg.OpenDB(settings.PostgresDSN(), settings.PoolMin, settings.PoolMax)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := pg.MigrateSchema(db); err != nil {
				return err
			}
			fmt.Printf("Schema ready (version %s)\n", pg.SchemaVersion(db))
			return nil
		},
	}
}
