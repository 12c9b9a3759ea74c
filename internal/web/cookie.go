// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/holoauth/internal/auth"
)

// DefaultCookieName is the name of the session cookie.
const DefaultCookieName = "sessionId"

// CookieConfig controls the session cookie attributes that vary by deployment.
type CookieConfig struct {
	Name   string
	Domain string
	// Secure must stay on wherever SameSite=None cookies have to be accepted
	// by browsers. Turning it off only makes sense for local HTTP testing.
	Secure bool
}

func (s *Server) sessionCookie(c *gin.Context) string {
	value, err := c.Cookie(s.cfg.Cookie.Name)
	if err != nil {
		return ""
	}
	return value
}

// setSessionCookie hands session to the client. Max-Age is the full session
// TTL on login and on every renewal.
func (s *Server) setSessionCookie(c *gin.Context, session *auth.Session) {
	s.writeSessionCookie(c, session.ID, int(s.sessions.TTL().Seconds()))
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	s.writeSessionCookie(c, "", -1)
}

// writeSessionCookie sets SameSite on the request context, so the attribute
// only applies to this response.
func (s *Server) writeSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(s.cfg.Cookie.Name, value, maxAge, "/", s.cfg.Cookie.Domain, s.cfg.Cookie.Secure, true)
}
