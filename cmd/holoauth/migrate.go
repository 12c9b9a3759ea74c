// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/store"
)

// Migrator is the part of store.Migrator the migrate commands drive.
type Migrator interface {
	Up() error
	Down() error
	Status() (store.Status, error)
	Close() error
}

// migratorFactory opens a migrator; tests replace it.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long:  `Apply, inspect or roll back the embedded PostgreSQL migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return oops.With("operation", "migrate up").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all auth data)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").
					Errorf("migrate down drops all users, sessions and tokens; rerun with --yes")
			}
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return oops.With("operation", "migrate down").Wrap(err)
				}
				cmd.Println("Schema removed")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm data loss")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				status, err := m.Status()
				if err != nil {
					return oops.With("operation", "migrate status").Wrap(err)
				}
				printStatus(cmd, status)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Secrets.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	m, err := migratorFactory(cfg.Secrets.DatabaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: failed to close migrator:", closeErr)
		}
	}()
	return fn(m)
}

func printStatus(cmd *cobra.Command, status store.Status) {
	cmd.Printf("Current version: %d", status.Current)
	if status.Dirty {
		cmd.Print(" (dirty)")
	}
	cmd.Println()

	for _, v := range status.Applied {
		name, _ := store.MigrationName(v) //nolint:errcheck // embedded FS reads do not fail
		cmd.Printf("  [applied] %s\n", name)
	}
	for _, v := range status.Pending {
		name, _ := store.MigrationName(v) //nolint:errcheck // embedded FS reads do not fail
		cmd.Printf("  [pending] %s\n", name)
	}
	if len(status.Pending) == 0 {
		cmd.Println("Schema is up to date")
	}
}
