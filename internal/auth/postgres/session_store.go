// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

const sessionColumns = `id, user_id, expires_at, created_at`

// SessionStore implements auth.SessionStore on the sessions table.
type SessionStore struct {
	db DB
}

var _ auth.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore.
func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts a session.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID, session.UserID.String(), session.ExpiresAt, session.CreatedAt)
	if isUniqueViolation(err) {
		return oops.Code("SESSION_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("SESSION_INSERT_FAILED").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// Get retrieves a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "get session").Wrap(err)
	}
	return session, nil
}

// ListByUser returns a user's sessions, oldest first.
func (s *SessionStore) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1
		ORDER BY created_at
	`, userID.String())
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").
			With("operation", "list sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return collectSessions(rows)
}

// ListExpired returns sessions whose expiry is strictly before the cutoff.
func (s *SessionStore) ListExpired(ctx context.Context, before time.Time) ([]*auth.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE expires_at < $1
		ORDER BY expires_at
	`, before)
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "list expired sessions").Wrap(err)
	}
	return collectSessions(rows)
}

// Delete removes a session and returns the removed row. Only one of several
// concurrent deletes of the same id observes the row.
func (s *SessionStore) Delete(ctx context.Context, id string) (*auth.Session, error) {
	row := s.db.QueryRow(ctx, `DELETE FROM sessions WHERE id = $1 RETURNING `+sessionColumns, id)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return session, nil
}

// DeleteByUser removes every session of a user.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func collectSessions(rows pgx.Rows) ([]*auth.Session, error) {
	defer rows.Close()
	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").Wrap(err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ITERATE_FAILED").Wrap(err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		session auth.Session
		userID  string
	)
	if err := row.Scan(&session.ID, &userID, &session.ExpiresAt, &session.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	id, err := ulid.Parse(userID)
	if err != nil {
		return nil, oops.Code("SESSION_USER_ID_INVALID").With("user_id", userID).Wrap(err)
	}
	session.UserID = id
	return &session, nil
}
