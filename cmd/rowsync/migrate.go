package main

import (
	"context"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/rowsync/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := newLogger()
			dsn := requireEnv(lg, "ROWSYNC_POSTGRES_DSN")

			database, err := db.Open(dsn)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.EnsureSchema(context.Background(), database); err != nil {
				return err
			}
			level.Info(lg).Log("msg", "schema up to date", "version", db.SchemaVersion)
			return nil
		},
	}
}
