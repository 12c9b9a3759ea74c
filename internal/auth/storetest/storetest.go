// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storetest holds behavioural checks every auth store backend must pass.
// Each check uses fresh ids so backends can share one database across runs.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

// base is truncated to microseconds so round trips through postgres compare equal.
func base() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newID(t *testing.T) string {
	t.Helper()
	id, err := auth.GenerateID()
	require.NoError(t, err)
	return id
}

// SessionStore exercises an auth.SessionStore implementation.
func SessionStore(t *testing.T, store auth.SessionStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		now := base()
		session := &auth.Session{ID: newID(t), UserID: ulid.Make(), ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		require.NoError(t, store.Create(ctx, session))

		got, err := store.Get(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, session.UserID, got.UserID)
		assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
	})

	t.Run("duplicate id", func(t *testing.T) {
		now := base()
		session := &auth.Session{ID: newID(t), UserID: ulid.Make(), ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		require.NoError(t, store.Create(ctx, session))
		assert.ErrorIs(t, store.Create(ctx, session), auth.ErrAlreadyExists)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, newID(t))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("list by user", func(t *testing.T) {
		now := base()
		userID := ulid.Make()
		for i := range 3 {
			require.NoError(t, store.Create(ctx, &auth.Session{
				ID:        newID(t),
				UserID:    userID,
				ExpiresAt: now.Add(time.Hour),
				CreatedAt: now.Add(time.Duration(i) * time.Second),
			}))
		}
		sessions, err := store.ListByUser(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, sessions, 3)

		n, err := store.DeleteByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		sessions, err = store.ListByUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("list expired is strict", func(t *testing.T) {
		cutoff := base().Add(-24 * time.Hour)
		expired := &auth.Session{ID: newID(t), UserID: ulid.Make(), ExpiresAt: cutoff.Add(-time.Second), CreatedAt: cutoff.Add(-time.Hour)}
		boundary := &auth.Session{ID: newID(t), UserID: ulid.Make(), ExpiresAt: cutoff, CreatedAt: cutoff.Add(-time.Hour)}
		require.NoError(t, store.Create(ctx, expired))
		require.NoError(t, store.Create(ctx, boundary))

		sessions, err := store.ListExpired(ctx, cutoff)
		require.NoError(t, err)
		ids := make(map[string]bool, len(sessions))
		for _, s := range sessions {
			ids[s.ID] = true
		}
		assert.True(t, ids[expired.ID])
		assert.False(t, ids[boundary.ID])

		_, _ = store.Delete(ctx, expired.ID)
		_, _ = store.Delete(ctx, boundary.ID)
	})

	t.Run("concurrent delete has one winner", func(t *testing.T) {
		now := base()
		session := &auth.Session{ID: newID(t), UserID: ulid.Make(), ExpiresAt: now.Add(time.Hour), CreatedAt: now}
		require.NoError(t, store.Create(ctx, session))

		var winners, misses atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := store.Delete(ctx, session.ID)
				switch {
				case err == nil:
					assert.Equal(t, session.ID, got.ID)
					winners.Add(1)
				case assert.ErrorIs(t, err, auth.ErrNotFound):
					misses.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
		assert.Equal(t, int32(7), misses.Load())
	})
}

// TokenStore exercises an auth.TokenStore implementation.
func TokenStore(t *testing.T, store auth.TokenStore) {
	ctx := context.Background()

	newToken := func(t *testing.T, kind auth.TokenKind, identifier string, createdAt time.Time) *auth.Token {
		t.Helper()
		token := &auth.Token{
			Token:      newID(t),
			Kind:       kind,
			Identifier: identifier,
			ExpiresAt:  createdAt.Add(time.Hour),
			CreatedAt:  createdAt,
		}
		require.NoError(t, store.Create(ctx, token))
		return token
	}

	t.Run("create get delete", func(t *testing.T) {
		identifier := ulid.Make().String() + "@example.com"
		token := newToken(t, auth.TokenPasswordReset, identifier, base())

		got, err := store.Get(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.TokenPasswordReset, got.Kind)
		assert.Equal(t, identifier, got.Identifier)

		deleted, err := store.Delete(ctx, token.Token)
		require.NoError(t, err)
		assert.Equal(t, token.Token, deleted.Token)

		_, err = store.Get(ctx, token.Token)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = store.Delete(ctx, token.Token)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("find by identifier is scoped by kind", func(t *testing.T) {
		identifier := ulid.Make().String() + "@example.com"
		verify := newToken(t, auth.TokenEmailVerification, identifier, base())

		got, err := store.FindByIdentifier(ctx, identifier, auth.TokenEmailVerification)
		require.NoError(t, err)
		assert.Equal(t, verify.Token, got.Token)

		_, err = store.FindByIdentifier(ctx, identifier, auth.TokenPasswordReset)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		_, err = store.Delete(ctx, verify.Token)
		require.NoError(t, err)
		_, err = store.FindByIdentifier(ctx, identifier, auth.TokenEmailVerification)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("one token per identifier and kind", func(t *testing.T) {
		identifier := ulid.Make().String() + "@example.com"
		first := newToken(t, auth.TokenPasswordReset, identifier, base())

		second := &auth.Token{
			Token:      newID(t),
			Kind:       auth.TokenPasswordReset,
			Identifier: identifier,
			ExpiresAt:  base().Add(2 * time.Hour),
			CreatedAt:  base().Add(time.Minute),
		}
		assert.ErrorIs(t, store.Create(ctx, second), auth.ErrAlreadyExists)
		_, err := store.Get(ctx, second.Token)
		assert.ErrorIs(t, err, auth.ErrNotFound, "a refused token leaves nothing behind")

		newToken(t, auth.TokenEmailVerification, identifier, base())

		_, err = store.Delete(ctx, first.Token)
		require.NoError(t, err)
		require.NoError(t, store.Create(ctx, second))
		got, err := store.FindByIdentifier(ctx, identifier, auth.TokenPasswordReset)
		require.NoError(t, err)
		assert.Equal(t, second.Token, got.Token)
	})

	t.Run("concurrent creates for one pair have one winner", func(t *testing.T) {
		identifier := ulid.Make().String() + "@example.com"

		values := make([]string, 8)
		for i := range values {
			values[i] = newID(t)
		}

		var winners atomic.Int32
		var wg sync.WaitGroup
		for _, value := range values {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.Create(ctx, &auth.Token{
					Token:      value,
					Kind:       auth.TokenEmailVerification,
					Identifier: identifier,
					ExpiresAt:  base().Add(time.Hour),
					CreatedAt:  base(),
				})
				if err == nil {
					winners.Add(1)
				} else {
					assert.ErrorIs(t, err, auth.ErrAlreadyExists)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("concurrent delete has one winner", func(t *testing.T) {
		token := newToken(t, auth.TokenEmailVerification, ulid.Make().String()+"@example.com", base())

		var winners atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Delete(ctx, token.Token); err == nil {
					winners.Add(1)
				} else {
					assert.ErrorIs(t, err, auth.ErrNotFound)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})
}

// UserStore exercises an auth.UserStore implementation.
func UserStore(t *testing.T, store auth.UserStore) {
	ctx := context.Background()

	newUser := func(t *testing.T) *auth.User {
		t.Helper()
		now := base()
		user := &auth.User{
			ID:           ulid.Make(),
			Email:        ulid.Make().String() + "@Example.com",
			PasswordHash: "hash",
			Name:         "Ada",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, store.Create(ctx, user))
		return user
	}

	t.Run("lookup by id and email", func(t *testing.T) {
		user := newUser(t)

		byID, err := store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.NormalizeEmail(user.Email), byID.Email)

		byEmail, err := store.GetByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("email is unique ignoring case", func(t *testing.T) {
		user := newUser(t)
		dup := *user
		dup.ID = ulid.Make()
		dup.Email = auth.NormalizeEmail(user.Email)
		assert.ErrorIs(t, store.Create(ctx, &dup), auth.ErrAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := store.GetByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = store.GetByEmail(ctx, "nobody-"+ulid.Make().String()+"@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.ErrorIs(t, store.UpdatePassword(ctx, ulid.Make(), "x"), auth.ErrNotFound)
		assert.ErrorIs(t, store.MarkEmailVerified(ctx, ulid.Make()), auth.ErrNotFound)
	})

	t.Run("updates", func(t *testing.T) {
		user := newUser(t)
		require.NoError(t, store.UpdatePassword(ctx, user.ID, "new-hash"))
		require.NoError(t, store.MarkEmailVerified(ctx, user.ID))
		require.NoError(t, store.MarkEmailVerified(ctx, user.ID), "verifying twice is harmless")

		got, err := store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
		assert.True(t, got.EmailVerified)
	})
}
