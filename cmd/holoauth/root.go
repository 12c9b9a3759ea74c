// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the holoauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holoauth",
		Short: "holoauth - session authentication service",
		Long: `holoauth serves email/password authentication over HTTP with
sliding cookie sessions, single-use email tokens and a background
session reaper. Users, sessions and tokens can each live in memory,
PostgreSQL, Redis or MongoDB.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with secrets (ignored when missing)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("holoauth %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

// loadConfig reads the config file, flags and environment for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := config.LoadOptions{
		File:  configFile,
		Flags: cmd.Flags(),
	}
	if envFile != "" {
		opts.EnvFiles = []string{envFile}
	}
	return config.Load(opts) //nolint:wrapcheck // config errors carry their own codes
}
