// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/pkg/errutil"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Environ: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, Default().HTTP, cfg.HTTP)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, BackendMemory, cfg.Store.Sessions)
	assert.Equal(t, TransportLog, cfg.Mail.Transport)
	assert.Equal(t, "holoauth", cfg.Secrets.MongoDatabase)
	assert.Equal(t, 587, cfg.Secrets.SMTP.Port)
	assert.False(t, cfg.Development())
}

func TestLoad_FileThenFlags(t *testing.T) {
	path := writeFile(t, "holoauth.yaml", `
environment: development
http:
  addr: ":9000"
  cors_allowed_origins:
    - https://app.example.com
log:
  format: text
session:
  ttl: 2m
  renewal_threshold: 1m
  cookie_secure: false
store:
  users: postgres
  sessions: redis
  tokens: redis
mail:
  base_url: https://auth.example.com
`)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--http.addr", ":9999"}))

	cfg, err := Load(LoadOptions{
		File:  path,
		Flags: flags,
		Environ: map[string]string{
			"DATABASE_URL": "postgres://localhost/holoauth",
			"REDIS_URL":    "redis://localhost:6379/0",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr, "set flags win over the file")
	assert.Equal(t, "text", cfg.Log.Format, "unset flags keep file values")
	assert.Equal(t, "info", cfg.Log.Level, "keys in neither source use defaults")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Session.TTL)
	assert.Equal(t, time.Minute, cfg.Session.RenewalThreshold)
	assert.False(t, cfg.Session.CookieSecure)
	assert.True(t, cfg.Development())
	assert.True(t, cfg.Uses(BackendRedis))
	assert.False(t, cfg.Uses(BackendMongo))
	assert.Equal(t, "postgres://localhost/holoauth", cfg.Secrets.DatabaseURL)
}

func TestLoad_EnvFile(t *testing.T) {
	path := writeFile(t, ".env", "HOLOAUTH_TEST_DOTENV=from-file\n")
	t.Setenv("HOLOAUTH_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("HOLOAUTH_TEST_DOTENV"))

	_, err := Load(LoadOptions{EnvFiles: []string{path, filepath.Join(t.TempDir(), "missing.env")}})
	require.NoError(t, err)

	assert.Equal(t, "from-file", os.Getenv("HOLOAUTH_TEST_DOTENV"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "nope.yaml")})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"threshold equals ttl", func(c *Config) { c.Session.RenewalThreshold = c.Session.TTL }, "session.renewal_threshold"},
		{"negative threshold", func(c *Config) { c.Session.RenewalThreshold = -time.Second }, "session.renewal_threshold"},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"zero reap interval", func(c *Config) { c.Session.ReapInterval = 0 }, "session.reap_interval"},
		{"insecure cookie in production", func(c *Config) { c.Session.CookieSecure = false }, "session.cookie_secure"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad http mode", func(c *Config) { c.HTTP.Mode = "fast" }, "http.mode"},
		{"wildcard cors", func(c *Config) { c.HTTP.CORSAllowedOrigins = []string{"*"} }, "http.cors_allowed_origins"},
		{"unknown backend", func(c *Config) { c.Store.Tokens = "etcd" }, "store.tokens"},
		{"users in redis", func(c *Config) { c.Store.Users = BackendRedis; c.Secrets.RedisURL = "redis://x" }, "store.users"},
		{"postgres without url", func(c *Config) { c.Store.Users = BackendPostgres }, "DATABASE_URL"},
		{"redis without url", func(c *Config) { c.Store.Sessions = BackendRedis }, "REDIS_URL"},
		{"mongo without uri", func(c *Config) { c.Store.Tokens = BackendMongo }, "MONGO_URI"},
		{"smtp without host", func(c *Config) { c.Mail.Transport = TransportSMTP }, "SMTP_HOST"},
		{"postmark without token", func(c *Config) { c.Mail.Transport = TransportPostmark }, "POSTMARK_SERVER_TOKEN"},
		{"unknown transport", func(c *Config) { c.Mail.Transport = "pigeon" }, "mail.transport"},
		{"relative base url", func(c *Config) { c.Mail.BaseURL = "/auth" }, "mail.base_url"},
		{"no sender", func(c *Config) { c.Mail.Sender = "" }, "mail.sender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}
}

func TestValidate_InsecureCookieAllowedInDevelopment(t *testing.T) {
	cfg := Default()
	cfg.Environment = EnvironmentDevelopment
	cfg.Session.CookieSecure = false

	assert.NoError(t, cfg.Validate())
}
