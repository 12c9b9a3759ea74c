// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// TokenKind names the flow a single-use token belongs to.
type TokenKind string

// Token kinds.
const (
	TokenEmailVerification TokenKind = "email_verification"
	TokenPasswordReset     TokenKind = "password_reset"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	switch k {
	case TokenEmailVerification, TokenPasswordReset:
		return true
	default:
		return false
	}
}

func (k TokenKind) String() string {
	return string(k)
}

// Token is a single-use secret proving control of Identifier.
type Token struct {
	Token      string
	Kind       TokenKind
	Identifier string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// IsExpiredAt reports whether the token can no longer be consumed at t.
func (t *Token) IsExpiredAt(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// TokenStore persists tokens keyed by the token string, with a secondary
// index on (identifier, kind).
type TokenStore interface {
	// Create stores a new token.
	Create(ctx context.Context, token *Token) error

	// Get retrieves a token. Returns ErrNotFound when absent.
	Get(ctx context.Context, token string) (*Token, error)

	// FindByIdentifier returns the token issued to identifier for kind.
	// Returns ErrNotFound when there is none.
	FindByIdentifier(ctx context.Context, identifier string, kind TokenKind) (*Token, error)

	// Delete removes a token and returns the removed record, or ErrNotFound
	// when another caller removed it first.
	Delete(ctx context.Context, token string) (*Token, error)
}
