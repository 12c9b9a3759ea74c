// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/mail"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/web"
)

// app is the fully wired server. Everything is constructed explicitly here;
// there is no container.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	backends *backends
	reaper   *auth.Reaper
	obs      *observability.Server
	http     *http.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps backendDeps) (_ *app, err error) {
	b, err := openBackends(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background()) //nolint:errcheck // construction error takes precedence
		}
	}()

	obs := observability.NewServer(cfg.Metrics.Addr, logger)
	auth.RegisterMetrics(obs.Registry())
	mail.RegisterMetrics(obs.Registry())
	for name, check := range b.checks {
		obs.AddReadinessCheck(name, check)
	}

	sessions, err := auth.NewSessionManagerWithLogger(b.sessions, auth.SessionConfig{
		TTL:              cfg.Session.TTL,
		RenewalThreshold: cfg.Session.RenewalThreshold,
	}, logger)
	if err != nil {
		return nil, oops.With("component", "session manager").Wrap(err)
	}

	tokens, err := auth.NewTokenManagerWithLogger(b.tokens, auth.TokenConfig{
		TTL: map[auth.TokenKind]time.Duration{
			auth.TokenEmailVerification: cfg.Tokens.VerificationTTL,
			auth.TokenPasswordReset:     cfg.Tokens.PasswordResetTTL,
		},
	}, logger)
	if err != nil {
		return nil, oops.With("component", "token manager").Wrap(err)
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return nil, err
	}

	hasher := auth.NewArgon2idHasher()
	service, err := auth.NewServiceWithLogger(b.users, sessions, hasher, logger)
	if err != nil {
		return nil, oops.With("component", "auth service").Wrap(err)
	}
	accounts, err := auth.NewAccountService(auth.AccountDeps{
		Users:    b.users,
		Tokens:   tokens,
		Sessions: sessions,
		Hasher:   hasher,
		Mailer:   mailer,
		Logger:   logger,
	})
	if err != nil {
		return nil, oops.With("component", "account service").Wrap(err)
	}

	reaper, err := auth.NewReaper(b.sessions, auth.ReaperConfig{
		Interval: cfg.Session.ReapInterval,
		Logger:   logger.With("component", "reaper"),
	})
	if err != nil {
		return nil, oops.With("component", "reaper").Wrap(err)
	}

	router, err := web.New(web.Config{
		Environment:    cfg.Environment,
		BasePath:       cfg.HTTP.BasePath,
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		Cookie: web.CookieConfig{
			Name:   cfg.Session.CookieName,
			Domain: cfg.Session.CookieDomain,
			Secure: cfg.Session.CookieSecure,
		},
	}, web.Deps{
		Auth:     service,
		Accounts: accounts,
		Sessions: sessions,
		Metrics:  obs.Metrics(),
		Logger:   logger,
	})
	if err != nil {
		return nil, oops.With("component", "router").Wrap(err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		backends: b,
		reaper:   reaper,
		obs:      obs,
		http: &http.Server{
			Handler:           router.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// newMailer builds the mailer over the configured transport.
func newMailer(cfg *config.Config, logger *slog.Logger) (*mail.Mailer, error) {
	var transport mail.Transport
	switch cfg.Mail.Transport {
	case config.TransportSMTP:
		smtpCfg := cfg.Secrets.SMTP
		t, err := mail.NewSMTPTransport(mail.SMTPConfig{
			Host:     smtpCfg.Host,
			Port:     smtpCfg.Port,
			Username: smtpCfg.Username,
			Password: smtpCfg.Password,
			TLSMode:  smtpCfg.TLSMode,
			Timeout:  smtpCfg.Timeout,
		})
		if err != nil {
			return nil, oops.With("component", "smtp transport").Wrap(err)
		}
		transport = t
	case config.TransportPostmark:
		t, err := mail.NewPostmarkTransport(cfg.Secrets.Postmark.ServerToken, cfg.Secrets.Postmark.AccountToken)
		if err != nil {
			return nil, oops.With("component", "postmark transport").Wrap(err)
		}
		transport = t
	default:
		transport = mail.NewLogTransport(logger)
	}

	mailer, err := mail.New(transport, mail.Config{
		BaseURL:  cfg.Mail.BaseURL,
		BasePath: cfg.HTTP.BasePath,
		Sender:   cfg.Mail.Sender,
		Support:  cfg.Mail.Support,
		ExpiresIn: map[auth.TokenKind]time.Duration{
			auth.TokenEmailVerification: cfg.Tokens.VerificationTTL,
			auth.TokenPasswordReset:     cfg.Tokens.PasswordResetTTL,
		},
		Retries: cfg.Mail.Retries,
		Backoff: cfg.Mail.Backoff,
	}, logger)
	if err != nil {
		return nil, oops.With("component", "mailer").Wrap(err)
	}
	return mailer, nil
}

// listen binds the API address.
func (a *app) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", a.cfg.HTTP.Addr).Wrap(err)
	}
	return ln, nil
}

// serve runs the API on ln, the reaper and the observability server until ctx
// is cancelled or a server fails, then shuts everything down.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Metrics.Addr != "" {
		obsErrChan, err := a.obs.Start()
		if err != nil {
			_ = ln.Close() //nolint:errcheck // start error takes precedence
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	a.reaper.Start(ctx)

	httpErrChan := make(chan error, 1)
	go func() {
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrChan <- err
		}
		close(httpErrChan)
	}()
	a.logger.Info("holoauth ready", "http_addr", ln.Addr().String(), "metrics_addr", a.obs.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-httpErrChan:
		serveErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("error stopping http server", "error", err)
	}
	a.reaper.Stop()
	if err := a.obs.Stop(shutdownCtx); err != nil {
		a.logger.Warn("error stopping observability server", "error", err)
	}
	if err := a.backends.Close(shutdownCtx); err != nil {
		a.logger.Warn("error closing stores", "error", err)
	}

	a.logger.Info("shutdown complete")
	return serveErr
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server error, triggering shutdown", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
