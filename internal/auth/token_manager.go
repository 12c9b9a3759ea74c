// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Token lifetime defaults.
const (
	DefaultVerificationTokenTTL  = 24 * time.Hour
	DefaultPasswordResetTokenTTL = time.Hour
)

// TokenConfig controls token lifetimes per kind.
type TokenConfig struct {
	// TTL maps each kind to its lifetime. Missing kinds use the defaults.
	TTL map[TokenKind]time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// TokenManager issues and consumes single-use tokens of every kind.
// At most one token is kept per (identifier, kind).
type TokenManager struct {
	store  TokenStore
	ttl    map[TokenKind]time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(store TokenStore, cfg TokenConfig) (*TokenManager, error) {
	return NewTokenManagerWithLogger(store, cfg, slog.Default())
}

// NewTokenManagerWithLogger creates a TokenManager that reports best-effort
// cleanup failures to logger.
func NewTokenManagerWithLogger(store TokenStore, cfg TokenConfig, logger *slog.Logger) (*TokenManager, error) {
	if store == nil {
		return nil, oops.Errorf("token store is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	ttl := map[TokenKind]time.Duration{
		TokenEmailVerification: DefaultVerificationTokenTTL,
		TokenPasswordReset:     DefaultPasswordResetTokenTTL,
	}
	for kind, d := range cfg.TTL {
		if !kind.Valid() {
			return nil, oops.With("kind", kind.String()).Errorf("unknown token kind")
		}
		if d <= 0 {
			return nil, oops.With("kind", kind.String()).Errorf("token ttl must be positive")
		}
		ttl[kind] = d
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenManager{store: store, ttl: ttl, now: cfg.Now, logger: logger}, nil
}

// createAttempts bounds how often CreateToken retries when a concurrent
// issue for the same pair claims the slot between supersede and insert.
const createAttempts = 3

// CreateToken issues a token of kind for identifier, replacing any token
// previously issued to the same pair. Stores hold at most one token per
// pair, so two overlapping calls cannot both leave a token behind: the
// loser supersedes the winner's token and inserts again.
func (m *TokenManager) CreateToken(ctx context.Context, kind TokenKind, identifier string) (*Token, error) {
	if !kind.Valid() {
		return nil, oops.Code(CodeTokenUnknownKind).With("kind", kind.String()).Errorf("unknown token kind")
	}
	if identifier == "" {
		return nil, oops.Code(CodeTokenIdentifierEmpty).Errorf("token identifier is required")
	}

	for attempt := 1; ; attempt++ {
		if err := m.supersede(ctx, kind, identifier); err != nil {
			return nil, err
		}

		value, err := GenerateID()
		if err != nil {
			return nil, oops.Code("TOKEN_CREATE_FAILED").Wrap(err)
		}
		now := m.now()
		token := &Token{
			Token:      value,
			Kind:       kind,
			Identifier: identifier,
			ExpiresAt:  now.Add(m.ttl[kind]),
			CreatedAt:  now,
		}

		err = m.store.Create(ctx, token)
		if err == nil {
			TokensIssued.WithLabelValues(kind.String()).Inc()
			return token, nil
		}
		if !errors.Is(err, ErrAlreadyExists) || attempt == createAttempts {
			return nil, oops.Code("TOKEN_CREATE_FAILED").
				With("kind", kind.String()).
				With("attempts", attempt).
				Wrap(err)
		}
	}
}

// supersede deletes the token currently held by (identifier, kind), if any.
func (m *TokenManager) supersede(ctx context.Context, kind TokenKind, identifier string) error {
	existing, err := m.store.FindByIdentifier(ctx, identifier, kind)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return oops.Code("TOKEN_LOOKUP_FAILED").
			With("kind", kind.String()).
			Wrap(err)
	}
	if _, err := m.store.Delete(ctx, existing.Token); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("TOKEN_SUPERSEDE_FAILED").
			With("kind", kind.String()).
			Wrap(err)
	}
	return nil
}

// ConsumeToken redeems a token of kind and returns its identifier. A token
// can be redeemed once: unknown or already used tokens are NotFound, and
// expired tokens are deleted and reported as Gone.
func (m *TokenManager) ConsumeToken(ctx context.Context, kind TokenKind, value string) (string, error) {
	if value == "" {
		return "", oops.Code(CodeTokenEmpty).Errorf("token is required")
	}

	token, err := m.store.Get(ctx, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordTokenConsumed(kind, ResultNotFound)
			return "", errTokenNotFound(kind)
		}
		recordTokenConsumed(kind, ResultError)
		return "", oops.Code("TOKEN_LOOKUP_FAILED").With("kind", kind.String()).Wrap(err)
	}
	if token.Kind != kind {
		recordTokenConsumed(kind, ResultNotFound)
		return "", errTokenNotFound(kind)
	}

	if token.IsExpiredAt(m.now()) {
		if _, err := m.store.Delete(ctx, value); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.WarnContext(ctx, "best-effort token delete failed",
				"operation", "delete_expired_token",
				"kind", kind.String(),
				"error", err.Error(),
			)
		}
		recordTokenConsumed(kind, ResultExpired)
		return "", oops.Code(CodeTokenExpired).
			With("kind", kind.String()).
			With("expired_at", token.ExpiresAt).
			Errorf("token has expired")
	}

	consumed, err := m.store.Delete(ctx, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordTokenConsumed(kind, ResultNotFound)
			return "", errTokenNotFound(kind)
		}
		recordTokenConsumed(kind, ResultError)
		return "", oops.Code("TOKEN_DELETE_FAILED").With("kind", kind.String()).Wrap(err)
	}

	recordTokenConsumed(kind, ResultSuccess)
	return consumed.Identifier, nil
}

// DeleteToken removes a token without redeeming it.
func (m *TokenManager) DeleteToken(ctx context.Context, value string) (*Token, error) {
	if value == "" {
		return nil, oops.Code(CodeTokenEmpty).Errorf("token is required")
	}
	token, err := m.store.Delete(ctx, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeTokenNotFound).Errorf("token not found")
		}
		return nil, oops.Code("TOKEN_DELETE_FAILED").Wrap(err)
	}
	return token, nil
}

func errTokenNotFound(kind TokenKind) error {
	return oops.Code(CodeTokenNotFound).
		With("kind", kind.String()).
		Errorf("token not found")
}
