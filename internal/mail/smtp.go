// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// TLS modes for SMTPConfig.TLSMode.
const (
	TLSModeSTARTTLS = "starttls"
	TLSModeTLS      = "tls"
	TLSModePlain    = "plain"
)

// SMTPConfig describes an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string
	Timeout  time.Duration
}

// SMTPTransport delivers through an SMTP relay.
type SMTPTransport struct {
	cfg  SMTPConfig
	auth smtp.Auth
	now  func() time.Time
}

// NewSMTPTransport validates cfg and creates an SMTP transport. Credentials
// are optional; without them the relay must accept unauthenticated mail.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port must be between 1 and 65535")
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = TLSModeSTARTTLS
	}
	switch cfg.TLSMode {
	case TLSModeSTARTTLS, TLSModeTLS, TLSModePlain:
	default:
		return nil, oops.Code("MAIL_CONFIG_INVALID").
			With("tls_mode", cfg.TLSMode).
			Errorf("smtp tls mode must be starttls, tls, or plain")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	t := &SMTPTransport{cfg: cfg, now: time.Now}
	if cfg.Username != "" {
		t.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return t, nil
}

// Deliver sends msg in a single SMTP session.
func (t *SMTPTransport) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return Permanent(err)
	}
	if strings.ContainsAny(msg.To+msg.From+msg.Subject, "\r\n") {
		return Permanent(oops.Code("MAIL_HEADER_INVALID").Errorf("header value contains a line break"))
	}

	client, err := t.dial(ctx)
	if err != nil {
		return oops.Code("SMTP_CONNECT_FAILED").With("host", t.cfg.Host).Wrap(err)
	}
	defer func() { _ = client.Close() }()

	if err := t.transact(client, msg); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("host", t.cfg.Host).Wrap(err)
	}
	return nil
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	tlsConfig := &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.TLSMode == TLSModeTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Deliver
	}
	_ = conn.SetDeadline(time.Now().Add(t.cfg.Timeout))

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err //nolint:wrapcheck // wrapped by Deliver
	}
	if t.cfg.TLSMode == TLSModeSTARTTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return client, nil
}

func (t *SMTPTransport) transact(client *smtp.Client, msg Message) error {
	if t.auth != nil {
		if err := client.Auth(t.auth); err != nil {
			return Permanent(fmt.Errorf("authenticate: %w", err))
		}
	}
	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(t.buildMessage(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	// The message is accepted once DATA completes.
	_ = client.Quit()
	return nil
}

func (t *SMTPTransport) buildMessage(msg Message) []byte {
	now := t.now()
	headers := [][2]string{
		{"From", msg.From},
		{"To", msg.To},
		{"Subject", msg.Subject},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%d.%s@%s>", now.UnixNano(), msg.Tag, t.cfg.Host)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/html; charset="UTF-8"`},
	}
	if msg.ReplyTo != "" {
		headers = append(headers, [2]string{"Reply-To", msg.ReplyTo})
	}

	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
