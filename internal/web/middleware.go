// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// subjectKey is the gin context key holding the auth.Subject.
const subjectKey = "auth.subject"

// RequireSession validates the session cookie, renewing it when it is close to
// expiry. A renewed session's cookie is written before the next handler runs.
// The subject is stored both in the gin context and in the request context.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := s.sessionCookie(c)

		validation, err := s.sessions.ValidateAndMaybeRenew(c.Request.Context(), presented)
		if err != nil {
			if presented != "" && auth.IsKind(err, auth.KindUnauthorized) {
				s.clearSessionCookie(c)
			}
			s.abortWithError(c, err)
			return
		}

		if validation.Renewed {
			s.setSessionCookie(c, validation.Session)
		}

		subject := auth.Subject{UserID: validation.UserID, SessionID: validation.Session.ID}
		c.Set(subjectKey, subject)
		c.Request = c.Request.WithContext(auth.WithSubject(c.Request.Context(), subject))
		c.Next()
	}
}

// SubjectFrom returns the subject set by RequireSession.
func SubjectFrom(c *gin.Context) (auth.Subject, bool) {
	if v, ok := c.Get(subjectKey); ok {
		subject, ok := v.(auth.Subject)
		return subject, ok
	}
	return auth.SubjectFromContext(c.Request.Context())
}

// requestLogger logs one line per request and records HTTP metrics.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		status := c.Writer.Status()
		s.metrics.ObserveRequest(c.Request.Method, route, status, elapsed)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency", elapsed,
			"client_ip", c.ClientIP(),
		)
	}
}

// recovery turns a handler panic into an internal error envelope.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		err := oops.Code("HTTP_PANIC").
			With("panic", recovered).
			Errorf("handler panicked")
		s.abortWithError(c, err)
	})
}
