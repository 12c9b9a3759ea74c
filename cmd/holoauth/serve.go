// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP authentication API, the session reaper and the
metrics/health server. Stops cleanly on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, backendDeps{})
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, deps backendDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.SetDefault("holoauth", version, cfg.Log.Format, cfg.Log.Level)
	gin.SetMode(cfg.HTTP.Mode)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting holoauth",
		"environment", cfg.Environment,
		"http_addr", cfg.HTTP.Addr,
		"mail_transport", cfg.Mail.Transport,
	)

	a, err := newApp(ctx, cfg, logger, deps)
	if err != nil {
		return err
	}
	ln, err := a.listen()
	if err != nil {
		_ = a.backends.Close(context.Background()) //nolint:errcheck // listen error takes precedence
		return err
	}
	return a.serve(ctx, ln)
}
