package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sharelink/internal/server/config"
	"sharelink/internal/server/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Repository != config.RepositoryPostgres {
			slog.Info("repository has no migrations", "repository", cfg.Repository)
			return nil
		}
		return database.Migrate(cfg.DatabaseURL)
	},
}
