package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-tally/internal/config"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on startup; this command only migrates.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show the configured database without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	target := settings.DatabasePath()
	if settings.Database.Driver == config.DriverPostgres {
		target = "postgres"
	}

	if status {
		fmt.Fprintf(cmd.OutOrStdout(), "Driver: %s\nDatabase: %s\n", settings.Database.Driver, target)
		return nil
	}

	slog.Info("Running database migrations", "driver", settings.Database.Driver, "database", target)

	store, err := initStorage(cmd.Context(), settings)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	slog.Info("Database migrations completed")
	return nil
}
