// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())
	return entry
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "json", "info", &buf)

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "holoauth", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "text", "info", &buf)

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "holoauth", "Output missing service")
}

func TestSetup_DefaultFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "", "", &buf)

	logger.Info("test message")

	decode(t, &buf)
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "json", "warn", &buf)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Equal(t, "kept", decode(t, &buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestSetup_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "json", "debug", &buf)

	logger.Info("login attempt",
		"email", "ada@example.com",
		"password", "hunter2",
		"token", "abc123",
		"session", "3f2a9c1d")

	entry := decode(t, &buf)
	assert.Equal(t, Redacted, entry["password"])
	assert.Equal(t, Redacted, entry["token"])
	assert.Equal(t, "ada@example.com", entry["email"])
	assert.Equal(t, "3f2a9c1d", entry["session"], "fingerprints are not secret")
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "json", "info", &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "json", "info", &buf)

	logger.Info("no trace message")

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithAttrsKeepsService(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("holoauth", "1.0.0", "json", "info", &buf).
		With("component", "reaper").
		WithGroup("sweep")

	logger.Info("swept", "deleted", 2)

	entry := decode(t, &buf)
	assert.Equal(t, "reaper", entry["component"])
	assert.Contains(t, entry, "sweep")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger := SetDefault("test-service", "2.0.0", "json", "info")

	assert.Same(t, logger, slog.Default())
}
