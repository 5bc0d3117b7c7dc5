package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/session"
)

func migrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Create or update the SQLite schema without starting the server.

Applies the workflow tables, and the session table when the "sql"
session backend is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Configuration file path")

	return cmd
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate workflows: %w", err)
	}

	if cfg.Session.Backend == "sql" {
		sessions := session.NewSQLStore(db.Handle(), session.WithCleanupInterval(0))
		if err := sessions.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate sessions: %w", err)
		}
	}

	fmt.Printf("migrated %s\n", cfg.Database.Path)
	return nil
}
