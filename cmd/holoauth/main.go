// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main is the entry point for the holoauth server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/holomush/holoauth/pkg/errutil"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		errutil.LogError(slog.New(slog.NewTextHandler(os.Stderr, nil)), "holoauth exited", err)
		os.Exit(1)
	}
}
