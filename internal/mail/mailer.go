// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail renders token emails and delivers them through a transport.
package mail

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/holoauth/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

// Config controls message content and delivery retries.
type Config struct {
	// BaseURL is the public origin links point at, e.g. https://app.example.com.
	BaseURL string
	// BasePath is the prefix the API routes are mounted under, e.g. /api.
	BasePath string
	Sender   string
	Support string
	// ExpiresIn is shown to the recipient per token kind.
	ExpiresIn map[auth.TokenKind]time.Duration
	// Retries after the first failed attempt. Defaults to 3.
	Retries uint64
	// Backoff is the first retry delay. Defaults to 200ms.
	Backoff time.Duration
}

type route struct {
	path string
	tag  string
}

var routes = map[auth.TokenKind]route{
	auth.TokenEmailVerification: {path: "/auth/verify-email", tag: "email-verification"},
	auth.TokenPasswordReset:     {path: "/auth/reset-password", tag: "password-reset"},
}

// Mailer implements auth.Mailer.
type Mailer struct {
	transport Transport
	cfg       Config
	base      *url.URL
	templates map[auth.TokenKind]*template.Template
	logger    *slog.Logger
}

var _ auth.Mailer = (*Mailer)(nil)

// New creates a Mailer delivering through transport.
func New(transport Transport, cfg Config, logger *slog.Logger) (*Mailer, error) {
	if transport == nil {
		return nil, oops.Errorf("mail transport is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("base_url", cfg.BaseURL).
			Errorf("mail base url must be an absolute URL")
	}
	if cfg.Sender == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail sender is required")
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}

	templates := make(map[auth.TokenKind]*template.Template, len(routes))
	for kind := range routes {
		tmpl, err := template.ParseFS(templateFS, "templates/"+string(kind)+".html")
		if err != nil {
			return nil, oops.Code("MAIL_TEMPLATE_INVALID").With("kind", string(kind)).Wrap(err)
		}
		templates[kind] = tmpl
	}

	return &Mailer{transport: transport, cfg: cfg, base: base, templates: templates, logger: logger}, nil
}

// Send renders the message for kind and delivers it, retrying transient
// transport failures with exponential backoff.
func (m *Mailer) Send(ctx context.Context, kind auth.TokenKind, to, token string) error {
	msg, err := m.Render(kind, to, token)
	if err != nil {
		return err
	}

	attempt := 0
	backoff := retry.WithMaxRetries(m.cfg.Retries, retry.NewExponential(m.cfg.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := m.transport.Deliver(ctx, msg)
		if err == nil || IsPermanent(err) {
			return err
		}
		m.logger.Debug("mail delivery attempt failed", "attempt", attempt, "kind", string(kind), "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		mailDeliveries.WithLabelValues(string(kind), resultFailed).Inc()
		return oops.Code("MAIL_DELIVERY_FAILED").
			With("kind", string(kind)).
			With("attempts", attempt).
			Wrap(err)
	}
	mailDeliveries.WithLabelValues(string(kind), resultSent).Inc()
	return nil
}

// Render builds the message for kind without sending it.
func (m *Mailer) Render(kind auth.TokenKind, to, token string) (Message, error) {
	r, ok := routes[kind]
	if !ok {
		return Message{}, oops.Code(auth.CodeTokenUnknownKind).With("kind", string(kind)).Errorf("unknown token kind")
	}
	if strings.ContainsAny(to, "\r\n") {
		return Message{}, oops.Code("MAIL_RECIPIENT_INVALID").Errorf("recipient contains a line break")
	}

	link := m.base.JoinPath(m.cfg.BasePath, r.path)
	link.RawQuery = url.Values{"token": {token}}.Encode()

	data := struct {
		To        string
		Link      string
		Support   string
		ExpiresIn string
	}{
		To:        to,
		Link:      link.String(),
		Support:   m.cfg.Support,
		ExpiresIn: humanize(m.cfg.ExpiresIn[kind]),
	}

	var subject, body bytes.Buffer
	tmpl := m.templates[kind]
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("kind", string(kind)).Wrap(err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("kind", string(kind)).Wrap(err)
	}

	return Message{
		From:    m.cfg.Sender,
		ReplyTo: m.cfg.Support,
		To:      to,
		Subject: strings.TrimSpace(subject.String()),
		HTML:    body.String(),
		Tag:     r.tag,
		Link:    data.Link,
	}, nil
}

func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
