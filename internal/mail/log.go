// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"
)

// LogTransport writes messages to the log instead of sending them. The
// action link is logged so developers can follow it locally.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a LogTransport.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

// Deliver logs msg.
func (t *LogTransport) Deliver(ctx context.Context, msg Message) error {
	t.logger.InfoContext(ctx, "email not sent, log transport",
		"to", msg.To,
		"subject", msg.Subject,
		"tag", msg.Tag,
		"link", msg.Link)
	return nil
}
