// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

// internalMessage replaces the message of internal failures outside
// development.
const internalMessage = "internal server error"

// kindStatus is the single mapping from failure kind to HTTP status.
var kindStatus = map[auth.Kind]int{
	auth.KindBadRequest:   http.StatusBadRequest,
	auth.KindUnauthorized: http.StatusUnauthorized,
	auth.KindNotFound:     http.StatusNotFound,
	auth.KindGone:         http.StatusGone,
	auth.KindConflict:     http.StatusConflict,
	auth.KindInternal:     http.StatusInternalServerError,
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	if status, ok := kindStatus[auth.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorEnvelope is the body of every failed response.
type ErrorEnvelope struct {
	StatusCode int         `json:"statusCode"`
	Success    bool        `json:"success"`
	Errors     ErrorDetail `json:"errors"`
}

// ErrorDetail carries the message and, in development, diagnostics.
type ErrorDetail struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Stack   string         `json:"stack,omitempty"`
}

// envelope translates err. Context and stack are only exposed in development.
func (s *Server) envelope(err error) ErrorEnvelope {
	status := StatusOf(err)
	detail := ErrorDetail{Message: err.Error()}

	if oopsErr, ok := oops.AsOops(err); ok {
		detail.Message = oopsErr.Error()
		if s.development() {
			if ctx := oopsErr.Context(); len(ctx) > 0 {
				detail.Context = ctx
			}
			detail.Stack = oopsErr.Stacktrace()
		}
	}
	if status == http.StatusInternalServerError && !s.development() {
		detail.Message = internalMessage
	}

	return ErrorEnvelope{StatusCode: status, Success: false, Errors: detail}
}

// abortWithError writes the envelope for err and stops the handler chain.
// Internal failures are logged with their oops context; client errors only
// at debug level.
func (s *Server) abortWithError(c *gin.Context, err error) {
	body := s.envelope(err)
	if body.StatusCode >= http.StatusInternalServerError {
		errutil.LogError(s.logger, "request failed", err,
			"method", c.Request.Method,
			"route", c.FullPath(),
		)
	} else {
		s.logger.DebugContext(c.Request.Context(), "request rejected",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", body.StatusCode,
			"kind", string(auth.KindOf(err)),
			"error", err.Error(),
		)
	}
	_ = c.Error(err) //nolint:errcheck // recorded for the request logger
	c.AbortWithStatusJSON(body.StatusCode, body)
}
