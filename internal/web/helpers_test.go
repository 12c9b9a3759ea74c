// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/web"
)

const (
	testTTL       = 120 * time.Second
	testThreshold = 60 * time.Second
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// plainHasher keeps tests fast; argon2id is covered in the auth package.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return "plain:" + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain:"+password, nil
}

func (plainHasher) NeedsUpgrade(string) bool { return false }

type sentMail struct {
	Kind  auth.TokenKind
	To    string
	Token string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *captureMailer) Send(_ context.Context, kind auth.TokenKind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: kind, To: to, Token: token})
	return nil
}

func (m *captureMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testEnv struct {
	clock    *fakeClock
	users    auth.UserStore
	sessions *memory.SessionStore
	tokens   *auth.TokenManager
	mailer   *captureMailer
	metrics  *observability.Metrics
	handler  http.Handler
}

type envOption func(*web.Config, *auth.UserStore)

func withEnvironment(environment string) envOption {
	return func(cfg *web.Config, _ *auth.UserStore) { cfg.Environment = environment }
}

func withUsers(users auth.UserStore) envOption {
	return func(_ *web.Config, store *auth.UserStore) { *store = users }
}

func withOrigins(origins ...string) envOption {
	return func(cfg *web.Config, _ *auth.UserStore) { cfg.AllowedOrigins = origins }
}

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := web.Config{
		Environment: "production",
		Cookie:      web.CookieConfig{Secure: true},
	}
	var users auth.UserStore = memory.NewUserStore()
	for _, opt := range opts {
		opt(&cfg, &users)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sessionStore := memory.NewSessionStore()

	sessions, err := auth.NewSessionManagerWithLogger(sessionStore, auth.SessionConfig{
		TTL:              testTTL,
		RenewalThreshold: testThreshold,
		Now:              clock.Now,
	}, logger)
	require.NoError(t, err)

	tokens, err := auth.NewTokenManagerWithLogger(memory.NewTokenStore(), auth.TokenConfig{Now: clock.Now}, logger)
	require.NoError(t, err)

	service, err := auth.NewServiceWithLogger(users, sessions, plainHasher{}, logger)
	require.NoError(t, err)

	mailer := &captureMailer{}
	accounts, err := auth.NewAccountService(auth.AccountDeps{
		Users:    users,
		Tokens:   tokens,
		Sessions: sessions,
		Hasher:   plainHasher{},
		Mailer:   mailer,
		Logger:   logger,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	server, err := web.New(cfg, web.Deps{
		Auth:     service,
		Accounts: accounts,
		Sessions: sessions,
		Metrics:  metrics,
		Logger:   logger,
	})
	require.NoError(t, err)

	return &testEnv{
		clock:    clock,
		users:    users,
		sessions: sessionStore,
		tokens:   tokens,
		mailer:   mailer,
		metrics:  metrics,
		handler:  server.Handler(),
	}
}

func (e *testEnv) seedUser(t *testing.T, email, password string, verified bool) *auth.User {
	t.Helper()
	user := &auth.User{
		ID:            ulid.Make(),
		Email:         email,
		PasswordHash:  "plain:" + password,
		EmailVerified: verified,
		CreatedAt:     e.clock.Now(),
		UpdatedAt:     e.clock.Now(),
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func (e *testEnv) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// login signs in a seeded user and returns the issued cookie.
func (e *testEnv) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "login must set the session cookie")
	return cookie
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == web.DefaultCookieName {
			found = c
		}
	}
	return found
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) web.ErrorEnvelope {
	t.Helper()
	var env web.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
