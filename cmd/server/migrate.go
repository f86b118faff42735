package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ktg0215/Management-sub000/internal/platform/storage/sqlite"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.New(cmd.Context(), cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			version, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("database migrated", slog.String("path", cfg.Database.Path), slog.Int("version", version))
			return nil
		},
	}
}
