// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoauth settings. Layers, lowest precedence first:
// built-in defaults, the YAML file, then command-line flags. Secrets never
// live in the file; they come from the environment, optionally seeded from
// .env files.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Mail transports.
const (
	TransportLog      = "log"
	TransportSMTP     = "smtp"
	TransportPostmark = "postmark"
)

// EnvironmentDevelopment exposes error diagnostics to clients.
const EnvironmentDevelopment = "development"

// Config is the full runtime configuration.
type Config struct {
	Environment string        `koanf:"environment"`
	HTTP        HTTPConfig    `koanf:"http"`
	Metrics     MetricsConfig `koanf:"metrics"`
	Log         LogConfig     `koanf:"log"`
	Session     SessionConfig `koanf:"session"`
	Tokens      TokensConfig  `koanf:"tokens"`
	Store       StoreConfig   `koanf:"store"`
	Mail        MailConfig    `koanf:"mail"`

	Secrets Secrets `koanf:"-"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr               string        `koanf:"addr"`
	Mode               string        `koanf:"mode"`
	BasePath           string        `koanf:"base_path"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// SessionConfig configures session lifetime and the session cookie.
type SessionConfig struct {
	TTL              time.Duration `koanf:"ttl"`
	RenewalThreshold time.Duration `koanf:"renewal_threshold"`
	ReapInterval     time.Duration `koanf:"reap_interval"`
	CookieName       string        `koanf:"cookie_name"`
	CookieDomain     string        `koanf:"cookie_domain"`
	CookieSecure     bool          `koanf:"cookie_secure"`
}

// TokensConfig sets token lifetimes.
type TokensConfig struct {
	VerificationTTL  time.Duration `koanf:"verification_ttl"`
	PasswordResetTTL time.Duration `koanf:"password_reset_ttl"`
}

// StoreConfig picks a backend per entity.
type StoreConfig struct {
	Users       string `koanf:"users"`
	Sessions    string `koanf:"sessions"`
	Tokens      string `koanf:"tokens"`
	RedisPrefix string `koanf:"redis_prefix"`
	// AutoMigrate applies pending postgres migrations at startup.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// MailConfig configures outgoing token mail.
type MailConfig struct {
	Transport string        `koanf:"transport"`
	BaseURL   string        `koanf:"base_url"`
	Sender    string        `koanf:"sender"`
	Support   string        `koanf:"support"`
	Retries   uint64        `koanf:"retries"`
	Backoff   time.Duration `koanf:"backoff"`
}

// Secrets are read from the environment only.
type Secrets struct {
	DatabaseURL   string   `env:"DATABASE_URL"`
	RedisURL      string   `env:"REDIS_URL"`
	MongoURI      string   `env:"MONGO_URI"`
	MongoDatabase string   `env:"MONGO_DATABASE" envDefault:"holoauth"`
	SMTP          SMTP     `envPrefix:"SMTP_"`
	Postmark      Postmark `envPrefix:"POSTMARK_"`
}

// SMTP holds SMTP relay settings.
type SMTP struct {
	Host     string        `env:"HOST"`
	Port     int           `env:"PORT" envDefault:"587"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	TLSMode  string        `env:"TLS_MODE" envDefault:"starttls"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Postmark holds Postmark API tokens.
type Postmark struct {
	ServerToken  string `env:"SERVER_TOKEN"`
	AccountToken string `env:"ACCOUNT_TOKEN"`
}

// Default returns the configuration used when nothing overrides it. It runs
// every store in memory and logs mail instead of sending it.
func Default() Config {
	return Config{
		Environment: "production",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			Mode:            "release",
			BasePath:        "/api",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Session: SessionConfig{
			TTL:              24 * time.Hour,
			RenewalThreshold: 12 * time.Hour,
			ReapInterval:     time.Minute,
			CookieName:       "sessionId",
			CookieSecure:     true,
		},
		Tokens: TokensConfig{
			VerificationTTL:  24 * time.Hour,
			PasswordResetTTL: time.Hour,
		},
		Store: StoreConfig{
			Users:       BackendMemory,
			Sessions:    BackendMemory,
			Tokens:      BackendMemory,
			RedisPrefix: "holoauth:",
		},
		Mail: MailConfig{
			Transport: TransportLog,
			BaseURL:   "http://localhost:8080",
			Sender:    "holoauth@localhost",
			Retries:   3,
			Backoff:   200 * time.Millisecond,
		},
	}
}

// RegisterFlags adds the flags that may override file settings. Flag names
// are the dotted config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("environment", d.Environment, "deployment environment (development exposes error details)")
	fs.String("http.addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics.addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log.format", d.Log.Format, "log format (json or text)")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
}

// LoadOptions says where to read configuration from.
type LoadOptions struct {
	// File is an optional YAML file.
	File string
	// Flags are applied on top of the file. Only flags set on the command
	// line override file values.
	Flags *pflag.FlagSet
	// EnvFiles are loaded into the process environment when they exist.
	// Variables already set are not overwritten.
	EnvFiles []string
	// Environ replaces the process environment for secrets. Nil means os.Environ.
	Environ map[string]string
}

// Load reads and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}
	if opts.Flags != nil {
		if err := k.Load(posflag.Provider(opts.Flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(&cfg.Secrets, env.Options{Environment: opts.Environ}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "environment").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(paths []string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
		}
	}
	return nil
}

// Development reports whether error diagnostics go to clients.
func (c *Config) Development() bool {
	return c.Environment == EnvironmentDevelopment
}

// Uses reports whether any entity is stored in backend.
func (c *Config) Uses(backend string) bool {
	return slices.Contains([]string{c.Store.Users, c.Store.Sessions, c.Store.Tokens}, backend)
}

func invalid(key string, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return invalid("environment", "environment is required")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if !slices.Contains([]string{"debug", "release", "test"}, c.HTTP.Mode) {
		return invalid("http.mode", "http.mode must be debug, release or test, got %q", c.HTTP.Mode)
	}
	if slices.Contains(c.HTTP.CORSAllowedOrigins, "*") {
		return invalid("http.cors_allowed_origins", "wildcard origin cannot be used with cookie credentials")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}

	if err := c.validateSession(); err != nil {
		return err
	}
	if c.Tokens.VerificationTTL <= 0 || c.Tokens.PasswordResetTTL <= 0 {
		return invalid("tokens", "token lifetimes must be positive")
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return c.validateMail()
}

func (c *Config) validateSession() error {
	s := c.Session
	if s.TTL <= 0 {
		return invalid("session.ttl", "session.ttl must be positive")
	}
	if s.RenewalThreshold < 0 || s.RenewalThreshold >= s.TTL {
		return invalid("session.renewal_threshold",
			"session.renewal_threshold must be below session.ttl (%s), got %s", s.TTL, s.RenewalThreshold)
	}
	if s.ReapInterval <= 0 {
		return invalid("session.reap_interval", "session.reap_interval must be positive")
	}
	if s.CookieName == "" {
		return invalid("session.cookie_name", "session.cookie_name is required")
	}
	if !s.CookieSecure && !c.Development() {
		return invalid("session.cookie_secure", "SameSite=None cookies require cookie_secure outside development")
	}
	return nil
}

func (c *Config) validateStore() error {
	valid := []string{BackendMemory, BackendPostgres, BackendRedis, BackendMongo}
	for key, backend := range map[string]string{
		"store.users":    c.Store.Users,
		"store.sessions": c.Store.Sessions,
		"store.tokens":   c.Store.Tokens,
	} {
		if !slices.Contains(valid, backend) {
			return invalid(key, "%s must be one of %v, got %q", key, valid, backend)
		}
	}
	if c.Store.Users == BackendRedis {
		return invalid("store.users", "users cannot be stored in redis")
	}

	if c.Uses(BackendPostgres) && c.Secrets.DatabaseURL == "" {
		return invalid("DATABASE_URL", "DATABASE_URL is required for the postgres backend")
	}
	if c.Uses(BackendRedis) && c.Secrets.RedisURL == "" {
		return invalid("REDIS_URL", "REDIS_URL is required for the redis backend")
	}
	if c.Uses(BackendMongo) && c.Secrets.MongoURI == "" {
		return invalid("MONGO_URI", "MONGO_URI is required for the mongo backend")
	}
	return nil
}

func (c *Config) validateMail() error {
	m := c.Mail
	switch m.Transport {
	case TransportLog:
	case TransportSMTP:
		if c.Secrets.SMTP.Host == "" {
			return invalid("SMTP_HOST", "SMTP_HOST is required for the smtp transport")
		}
	case TransportPostmark:
		if c.Secrets.Postmark.ServerToken == "" {
			return invalid("POSTMARK_SERVER_TOKEN", "POSTMARK_SERVER_TOKEN is required for the postmark transport")
		}
	default:
		return invalid("mail.transport", "mail.transport must be log, smtp or postmark, got %q", m.Transport)
	}

	u, err := url.Parse(m.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("mail.base_url", "mail.base_url must be an absolute URL, got %q", m.BaseURL)
	}
	if m.Sender == "" {
		return invalid("mail.sender", "mail.sender is required")
	}
	return nil
}
