// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
)

var sessionCols = []string{"id", "user_id", "expires_at", "created_at"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestSessionStore_Create(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := &auth.Session{ID: "abc", UserID: ulid.Make(), ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	tests := []struct {
		name       string
		setupMock  func(mock pgxmock.PgxPoolIface)
		wantExists bool
		wantErr    bool
	}{
		{
			name: "inserts row",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WithArgs("abc", session.UserID.String(), session.ExpiresAt, session.CreatedAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate id",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:    true,
			wantExists: true,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			tt.setupMock(mock)

			err := NewSessionStore(mock).Create(context.Background(), session)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantExists, errors.Is(err, auth.ErrAlreadyExists))
		})
	}
}

func TestSessionStore_Get(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := ulid.Make()

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = \$1`).
			WithArgs("abc").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow("abc", userID.String(), now.Add(time.Hour), now))

		got, err := NewSessionStore(mock).Get(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, &auth.Session{ID: "abc", UserID: userID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}, got)
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions WHERE id`).
			WithArgs("nope").
			WillReturnRows(pgxmock.NewRows(sessionCols))

		_, err := NewSessionStore(mock).Get(context.Background(), "nope")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("corrupt user id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM sessions WHERE id`).
			WithArgs("abc").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow("abc", "not-a-ulid", now, now))

		_, err := NewSessionStore(mock).Get(context.Background(), "abc")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionStore_ListExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := newMockPool(t)
	mock.ExpectQuery(`WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow("a", ulid.Make().String(), now.Add(-time.Hour), now.Add(-2*time.Hour)).
			AddRow("b", ulid.Make().String(), now.Add(-time.Minute), now.Add(-time.Hour)))

	got, err := NewSessionStore(mock).ListExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestSessionStore_ListByUser_QueryError(t *testing.T) {
	mock := newMockPool(t)
	userID := ulid.Make()
	mock.ExpectQuery(`WHERE user_id = \$1`).
		WithArgs(userID.String()).
		WillReturnError(errors.New("connection reset"))

	_, err := NewSessionStore(mock).ListByUser(context.Background(), userID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSessionStore_Delete(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := ulid.Make()

	t.Run("returns deleted row", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`DELETE FROM sessions WHERE id = \$1 RETURNING`).
			WithArgs("abc").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow("abc", userID.String(), now, now))

		got, err := NewSessionStore(mock).Delete(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, userID, got.UserID)
	})

	t.Run("already gone", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`DELETE FROM sessions`).
			WithArgs("abc").
			WillReturnRows(pgxmock.NewRows(sessionCols))

		_, err := NewSessionStore(mock).Delete(context.Background(), "abc")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionStore_DeleteByUser(t *testing.T) {
	mock := newMockPool(t)
	userID := ulid.Make()
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).
		WithArgs(userID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := NewSessionStore(mock).DeleteByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
