// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code and context.
// For standard errors, it logs the error string. Extra attrs are appended
// after the error fields.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := make([]any, 0, 6+len(attrs))
	if oopsErr, ok := oops.AsOops(err); ok {
		fields = append(fields, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			fields = append(fields, "context", ctx)
		}
	} else {
		fields = append(fields, "error", err)
	}
	logger.Error(msg, append(fields, attrs...)...)
}
