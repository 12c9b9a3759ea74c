// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

func TestLogin_SetsSessionCookie(t *testing.T) {
	env := newEnv(t)
	user := env.seedUser(t, "ada@example.com", "correct horse", true)

	rec := env.do(http.MethodPost, "/api/auth/login", `{"email":"Ada@Example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeJSON(t, rec)
	payload, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, user.ID.String(), payload["id"])
	assert.Equal(t, "ada@example.com", payload["email"])
	assert.Equal(t, true, payload["emailVerified"])
	assert.NotContains(t, payload, "passwordHash")

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Len(t, cookie.Value, 2*auth.IDBytes)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, int(testTTL.Seconds()), cookie.MaxAge)

	stored, err := env.sessions.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(testTTL), stored.ExpiresAt)

	assert.InDelta(t, 1, testutil.ToFloat64(
		env.metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/api/auth/login", "200")), 0)
}

func TestLogin_FailureStatuses(t *testing.T) {
	env := newEnv(t)
	env.seedUser(t, "ada@example.com", "correct horse", true)
	env.seedUser(t, "bob@example.com", "battery staple", false)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"missing password", `{"email":"ada@example.com"}`, http.StatusBadRequest},
		{"malformed json", `{"email":`, http.StatusBadRequest},
		{"unknown user", `{"email":"eve@example.com","password":"whatever1"}`, http.StatusNotFound},
		{"wrong password", `{"email":"ada@example.com","password":"wrong"}`, http.StatusUnauthorized},
		{"unverified email", `{"email":"bob@example.com","password":"battery staple"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/auth/login", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			envelope := decodeEnvelope(t, rec)
			assert.Equal(t, tt.status, envelope.StatusCode)
			assert.False(t, envelope.Success)
			assert.NotEmpty(t, envelope.Errors.Message)
			assert.Nil(t, envelope.Errors.Context, "context is hidden outside development")
			assert.Empty(t, envelope.Errors.Stack)
			assert.Nil(t, sessionCookie(rec))
		})
	}
	assert.Zero(t, env.sessions.Len(), "no failed login creates a session")
}

func TestLogout_WithoutCookieIsNoContent(t *testing.T) {
	env := newEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/logout", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Nil(t, sessionCookie(rec))
}

func TestLogout_EndsSessionAndClearsCookie(t *testing.T) {
	env := newEnv(t)
	env.seedUser(t, "ada@example.com", "correct horse", true)
	cookie := env.login(t, "ada@example.com", "correct horse")

	rec := env.do(http.MethodPost, "/api/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
	assert.Equal(t, "/", cleared.Path)
	assert.True(t, cleared.HttpOnly)
	assert.True(t, cleared.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cleared.SameSite, "the clearing cookie must match the one it replaces")
	assert.Zero(t, env.sessions.Len())

	rec = env.do(http.MethodPost, "/api/auth/logout", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code, "logging out twice is not an error")
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	env := newEnv(t)
	env.seedUser(t, "ada@example.com", "correct horse", true)
	first := env.login(t, "ada@example.com", "correct horse")
	env.login(t, "ada@example.com", "correct horse")

	rec := env.do(http.MethodPost, "/api/auth/logout-all", "", first)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 2, decodeJSON(t, rec)["revoked"], 0)
	assert.Zero(t, env.sessions.Len())

	rec = env.do(http.MethodPost, "/api/auth/logout-all", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	user := env.seedUser(t, "bob@example.com", "battery staple", false)

	t.Run("no token", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/auth/verify-email", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/auth/verify-email?token=deadbeef", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := env.tokens.CreateToken(ctx, auth.TokenEmailVerification, user.Email)
		require.NoError(t, err)
		env.clock.Advance(auth.DefaultVerificationTokenTTL + time.Second)

		rec := env.do(http.MethodGet, "/api/auth/verify-email?token="+token.Token, "")
		assert.Equal(t, http.StatusGone, rec.Code)
		assert.Equal(t, http.StatusGone, decodeEnvelope(t, rec).StatusCode)
	})

	t.Run("valid token is single use", func(t *testing.T) {
		token, err := env.tokens.CreateToken(ctx, auth.TokenEmailVerification, user.Email)
		require.NoError(t, err)

		rec := env.do(http.MethodGet, "/api/auth/verify-email?token="+token.Token, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		stored, err := env.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, stored.EmailVerified)

		rec = env.do(http.MethodGet, "/api/auth/verify-email?token="+token.Token, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reset token is not a verification token", func(t *testing.T) {
		token, err := env.tokens.CreateToken(ctx, auth.TokenPasswordReset, user.Email)
		require.NoError(t, err)

		rec := env.do(http.MethodGet, "/api/auth/verify-email?token="+token.Token, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestResendVerification(t *testing.T) {
	env := newEnv(t)
	env.seedUser(t, "bob@example.com", "battery staple", false)

	rec := env.do(http.MethodPost, "/api/auth/verify-email/resend", `{"email":"bob@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sent := env.mailer.last(t)
	assert.Equal(t, auth.TokenEmailVerification, sent.Kind)
	assert.Equal(t, "bob@example.com", sent.To)

	rec = env.do(http.MethodPost, "/api/auth/verify-email/resend", `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.mailer.count())

	rec = env.do(http.MethodPost, "/api/auth/verify-email/resend", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newEnv(t)
	env.seedUser(t, "ada@example.com", "correct horse", true)
	oldCookie := env.login(t, "ada@example.com", "correct horse")

	rec := env.do(http.MethodPost, "/api/auth/forgot-password", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/forgot-password", `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, env.mailer.count(), "unknown addresses get no mail")

	rec = env.do(http.MethodPost, "/api/auth/forgot-password", `{"email":"ada@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sent := env.mailer.last(t)
	require.Equal(t, auth.TokenPasswordReset, sent.Kind)

	rec = env.do(http.MethodPost, "/api/auth/reset-password", `{"password":"new password 1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing token")

	rec = env.do(http.MethodPost, "/api/auth/reset-password?token="+sent.Token, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing password")

	rec = env.do(http.MethodPost, "/api/auth/reset-password?token="+sent.Token, `{"password":"new password 1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/user", "", oldCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "reset revokes existing sessions")

	rec = env.do(http.MethodPost, "/api/auth/reset-password?token="+sent.Token, `{"password":"new password 2"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "reset tokens are single use")

	env.login(t, "ada@example.com", "new password 1")
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	env := newEnv(t)
	env.seedUser(t, "ada@example.com", "correct horse", true)
	token, err := env.tokens.CreateToken(context.Background(), auth.TokenPasswordReset, "ada@example.com")
	require.NoError(t, err)

	env.clock.Advance(auth.DefaultPasswordResetTokenTTL)

	rec := env.do(http.MethodPost, "/api/auth/reset-password?token="+token.Token, `{"password":"new password 1"}`)
	assert.Equal(t, http.StatusGone, rec.Code)
}
