// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

const tokenColumns = `token, kind, identifier, expires_at, created_at`

// TokenStore implements auth.TokenStore on the tokens table.
type TokenStore struct {
	db DB
}

var _ auth.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a TokenStore.
func NewTokenStore(db DB) *TokenStore {
	return &TokenStore{db: db}
}

// Create inserts a token. The unique (identifier, kind) index refuses a
// second token for a pair with ErrAlreadyExists.
func (s *TokenStore) Create(ctx context.Context, token *auth.Token) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tokens (token, kind, identifier, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.Token, string(token.Kind), token.Identifier, token.ExpiresAt, token.CreatedAt)
	if isUniqueViolation(err) {
		return oops.Code("TOKEN_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("TOKEN_INSERT_FAILED").With("kind", string(token.Kind)).Wrap(err)
	}
	return nil
}

// Get retrieves a token by value.
func (s *TokenStore) Get(ctx context.Context, value string) (*auth.Token, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token = $1`, value)
	return s.one(row, "get token")
}

// FindByIdentifier returns the token of kind issued to identifier.
func (s *TokenStore) FindByIdentifier(ctx context.Context, identifier string, kind auth.TokenKind) (*auth.Token, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+tokenColumns+` FROM tokens
		WHERE identifier = $1 AND kind = $2
	`, identifier, string(kind))
	return s.one(row, "find token by identifier")
}

// Delete removes a token and returns the removed row.
func (s *TokenStore) Delete(ctx context.Context, value string) (*auth.Token, error) {
	row := s.db.QueryRow(ctx, `DELETE FROM tokens WHERE token = $1 RETURNING `+tokenColumns, value)
	return s.one(row, "delete token")
}

func (s *TokenStore) one(row pgx.Row, operation string) (*auth.Token, error) {
	var (
		token auth.Token
		kind  string
	)
	err := row.Scan(&token.Token, &kind, &token.Identifier, &token.ExpiresAt, &token.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_ROW_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	token.Kind = auth.TokenKind(kind)
	return &token, nil
}
