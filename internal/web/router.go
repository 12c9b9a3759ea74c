// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the auth services over HTTP with gin. Handlers translate
// requests into service calls and service errors into the JSON error envelope;
// no domain decisions are made here.
package web

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/observability"
)

// EnvironmentDevelopment enables error context and stack traces in responses.
const EnvironmentDevelopment = "development"

// DefaultBasePath prefixes every API route.
const DefaultBasePath = "/api"

// Config controls the router.
type Config struct {
	Environment    string
	BasePath       string
	AllowedOrigins []string
	Cookie         CookieConfig
}

// Deps groups the services the handlers call.
type Deps struct {
	Auth     *auth.Service
	Accounts *auth.AccountService
	Sessions *auth.SessionManager
	// Metrics is optional.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Server owns the gin engine and the handlers.
type Server struct {
	cfg      Config
	auth     *auth.Service
	accounts *auth.AccountService
	sessions *auth.SessionManager
	metrics  *observability.Metrics
	logger   *slog.Logger
	engine   *gin.Engine
}

// New builds the router with all routes registered.
func New(cfg Config, deps Deps) (*Server, error) {
	if slices.Contains(cfg.AllowedOrigins, "*") {
		return nil, oops.Code("WEB_CONFIG_INVALID").
			Errorf("wildcard CORS origin cannot be combined with credentialed requests")
	}
	switch {
	case deps.Auth == nil:
		return nil, oops.Errorf("auth service is required")
	case deps.Accounts == nil:
		return nil, oops.Errorf("account service is required")
	case deps.Sessions == nil:
		return nil, oops.Errorf("session manager is required")
	}
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = DefaultCookieName
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		auth:     deps.Auth,
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) development() bool {
	return s.cfg.Environment == EnvironmentDevelopment
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(s.recovery(), s.requestLogger())

	if len(s.cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		corsConfig.MaxAge = 12 * time.Hour
		router.Use(cors.New(corsConfig))
	}

	router.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorEnvelope{
			StatusCode: http.StatusNotFound,
			Errors:     ErrorDetail{Message: "route not found"},
		})
	})

	api := router.Group(s.cfg.BasePath)

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/login", s.login)
		authRoutes.POST("/logout", s.logout)
		authRoutes.POST("/logout-all", s.RequireSession(), s.logoutAll)
		authRoutes.GET("/verify-email", s.verifyEmail)
		authRoutes.POST("/verify-email/resend", s.resendVerification)
		authRoutes.POST("/forgot-password", s.forgotPassword)
		authRoutes.POST("/reset-password", s.resetPassword)
	}

	userRoutes := api.Group("/user")
	{
		userRoutes.POST("/register", s.register)

		signedIn := userRoutes.Group("", s.RequireSession())
		signedIn.GET("", s.profile)
		signedIn.PUT("/password", s.changePassword)
		signedIn.GET("/sessions", s.listSessions)
	}

	return router
}
