// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smtpSink is a minimal SMTP server that accepts one message.
type smtpSink struct {
	ln   net.Listener
	data chan string
	rcpt chan string
}

func newSMTPSink(t *testing.T) *smtpSink {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &smtpSink{ln: ln, data: make(chan string, 1), rcpt: make(chan string, 1)}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *smtpSink) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *smtpSink) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 sink ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 sink")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.rcpt <- strings.TrimSpace(line)
			reply("250 ok")
		case cmd == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.data <- body.String()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestNewSMTPTransport_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
	}{
		{"missing host", SMTPConfig{Port: 25}},
		{"bad port", SMTPConfig{Host: "mail", Port: 70000}},
		{"bad tls mode", SMTPConfig{Host: "mail", Port: 25, TLSMode: "ssl3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSMTPTransport(tt.cfg)
			require.Error(t, err)
		})
	}

	tr, err := NewSMTPTransport(SMTPConfig{Host: "mail", Port: 587})
	require.NoError(t, err)
	assert.Equal(t, TLSModeSTARTTLS, tr.cfg.TLSMode)
	assert.Nil(t, tr.auth, "no credentials, no auth")
}

func TestSMTPTransport_Deliver_Plain(t *testing.T) {
	sink := newSMTPSink(t)
	tr, err := NewSMTPTransport(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    sink.port(),
		TLSMode: TLSModePlain,
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)

	err = tr.Deliver(context.Background(), Message{
		From:    "noreply@example.com",
		ReplyTo: "support@example.com",
		To:      "ada@example.com",
		Subject: "Verify your email address",
		HTML:    "<p>hello</p>",
		Tag:     "email-verification",
	})
	require.NoError(t, err)

	assert.Equal(t, "RCPT TO:<ada@example.com>", <-sink.rcpt)
	body := <-sink.data
	assert.Contains(t, body, "Subject: Verify your email address\r\n")
	assert.Contains(t, body, "Reply-To: support@example.com\r\n")
	assert.Contains(t, body, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(body, "<p>hello</p>\r\n"))
}

func TestSMTPTransport_Deliver_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr, err := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port, TLSMode: TLSModePlain, Timeout: time.Second})
	require.NoError(t, err)

	err = tr.Deliver(context.Background(), Message{From: "a@example.com", To: "b@example.com"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err), "connection failures are retried")
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestSMTPTransport_RejectsHeaderInjection(t *testing.T) {
	tr, err := NewSMTPTransport(SMTPConfig{Host: "mail", Port: 25, TLSMode: TLSModePlain})
	require.NoError(t, err)

	err = tr.Deliver(context.Background(), Message{From: "a@example.com", To: "b@example.com", Subject: "hi\r\nBcc: c@example.com"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}
