// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

func TestGenerateID(t *testing.T) {
	t.Run("generates 256-bit hex id", func(t *testing.T) {
		id, err := auth.GenerateID()
		require.NoError(t, err)
		assert.Len(t, id, 64)
		raw, err := hex.DecodeString(id)
		require.NoError(t, err)
		assert.Len(t, raw, auth.IDBytes)
	})

	t.Run("generates unique ids", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 100 {
			id, err := auth.GenerateID()
			require.NoError(t, err)
			_, dup := seen[id]
			require.False(t, dup)
			seen[id] = struct{}{}
		}
	})
}

func TestSession_IsExpiredAt(t *testing.T) {
	now := time.Now()
	session := &auth.Session{ID: "s", UserID: ulid.Make(), ExpiresAt: now}

	assert.False(t, session.IsExpiredAt(now.Add(-time.Nanosecond)))
	assert.True(t, session.IsExpiredAt(now), "valid only strictly before expiry")
	assert.True(t, session.IsExpiredAt(now.Add(time.Second)))
	assert.Equal(t, time.Minute, session.TimeLeft(now.Add(-time.Minute)))
}

func TestFingerprint(t *testing.T) {
	id, err := auth.GenerateID()
	require.NoError(t, err)

	fp := auth.Fingerprint(id)
	assert.Len(t, fp, 16)
	assert.NotContains(t, id, fp)
	assert.Equal(t, fp, auth.Fingerprint(id))
	assert.Equal(t, fp, (&auth.Session{ID: id}).Fingerprint())
}

func TestTokenKind(t *testing.T) {
	assert.True(t, auth.TokenEmailVerification.Valid())
	assert.True(t, auth.TokenPasswordReset.Valid())
	assert.False(t, auth.TokenKind("magic_link").Valid())

	now := time.Now()
	token := &auth.Token{ExpiresAt: now}
	assert.True(t, token.IsExpiredAt(now))
	assert.False(t, token.IsExpiredAt(now.Add(-time.Second)))
}
