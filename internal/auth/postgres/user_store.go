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

const userColumns = `id, email, password_hash, name, image, email_verified, created_at, updated_at`

// UserStore implements auth.UserStore on the users table.
type UserStore struct {
	db  DB
	now func() time.Time
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore.
func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db, now: time.Now}
}

// Create inserts a user. A taken email yields auth.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, image, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		auth.NormalizeEmail(user.Email),
		user.PasswordHash,
		user.Name,
		user.Image,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("USER_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("USER_INSERT_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by id.
func (s *UserStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return scanUser(row, "get user by id")
}

// GetByEmail retrieves a user by email, ignoring case.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`,
		auth.NormalizeEmail(email))
	return scanUser(row, "get user by email")
}

// UpdatePassword replaces the stored password hash.
func (s *UserStore) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id.String(), passwordHash, s.now())
	return affectedOne(tag.RowsAffected(), err, "update password", id)
}

// MarkEmailVerified sets email_verified on the user.
func (s *UserStore) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET email_verified = TRUE, updated_at = $2 WHERE id = $1`,
		id.String(), s.now())
	return affectedOne(tag.RowsAffected(), err, "mark email verified", id)
}

func affectedOne(rows int64, err error, operation string, id ulid.ULID) error {
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("user_id", id.String()).
			Wrap(err)
	}
	if rows == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row, operation string) (*auth.User, error) {
	var (
		user auth.User
		id   string
	)
	err := row.Scan(&id, &user.Email, &user.PasswordHash, &user.Name, &user.Image,
		&user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("USER_ID_INVALID").With("id", id).Wrap(err)
	}
	user.ID = parsed
	return &user, nil
}
