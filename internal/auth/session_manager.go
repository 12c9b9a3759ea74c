// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session lifetime defaults.
const (
	DefaultSessionTTL = 24 * time.Hour
)

// SessionConfig controls session lifetime and renewal.
type SessionConfig struct {
	// TTL is the lifetime of a freshly created session.
	TTL time.Duration
	// RenewalThreshold is the remaining lifetime at or below which a
	// validated session is replaced. Zero means half of TTL.
	RenewalThreshold time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Validation is the outcome of a successful session validation.
type Validation struct {
	UserID ulid.ULID
	// Session is the session the client should present from now on.
	Session *Session
	// Renewed is true when Session replaced the presented one.
	Renewed bool
}

// SessionManager owns the session lifecycle. It holds no locks: concurrent
// requests on one session are reconciled by the store's delete semantics.
type SessionManager struct {
	store     SessionStore
	ttl       time.Duration
	threshold time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(store SessionStore, cfg SessionConfig) (*SessionManager, error) {
	return NewSessionManagerWithLogger(store, cfg, slog.Default())
}

// NewSessionManagerWithLogger creates a SessionManager that reports
// best-effort cleanup failures to logger.
func NewSessionManagerWithLogger(store SessionStore, cfg SessionConfig, logger *slog.Logger) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Errorf("session store is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.RenewalThreshold == 0 {
		cfg.RenewalThreshold = cfg.TTL / 2
	}
	if cfg.RenewalThreshold < 0 || cfg.RenewalThreshold >= cfg.TTL {
		return nil, oops.
			With("ttl", cfg.TTL.String()).
			With("renewal_threshold", cfg.RenewalThreshold.String()).
			Errorf("renewal threshold must be positive and shorter than ttl")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionManager{
		store:     store,
		ttl:       cfg.TTL,
		threshold: cfg.RenewalThreshold,
		now:       cfg.Now,
		logger:    logger,
	}, nil
}

// TTL returns the lifetime given to new sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// CreateSession issues a new session for userID.
func (m *SessionManager) CreateSession(ctx context.Context, userID ulid.ULID) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, oops.Code(CodeSessionCreateFailed).Wrap(err)
	}

	now := m.now()
	session := &Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, oops.Code(CodeSessionCreateFailed).
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}

	SessionsCreated.Inc()
	return session, nil
}

// GetSession looks up a session without checking expiry.
// Returns ErrNotFound when absent.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, oops.Code(CodeSessionLookupFailed).
			With("session", Fingerprint(id)).
			Wrap(err)
	}
	return session, nil
}

// DeleteSession removes a session and returns it. A missing session is an
// internal failure here; use EndSession where "already gone" is acceptable.
func (m *SessionManager) DeleteSession(ctx context.Context, id string) (*Session, error) {
	session, err := m.store.Delete(ctx, id)
	if err != nil {
		return nil, oops.Code(CodeSessionDeleteFailed).
			With("session", Fingerprint(id)).
			Wrap(err)
	}
	return session, nil
}

// EndSession removes a session, treating a missing one as already ended.
func (m *SessionManager) EndSession(ctx context.Context, id string) error {
	if _, err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code(CodeSessionDeleteFailed).
			With("session", Fingerprint(id)).
			Wrap(err)
	}
	return nil
}

// EndAllSessions removes every session of userID.
func (m *SessionManager) EndAllSessions(ctx context.Context, userID ulid.ULID) (int64, error) {
	n, err := m.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code(CodeSessionDeleteFailed).
			With("user_id", userID.String()).
			Wrap(err)
	}
	return n, nil
}

// ListSessions returns the unexpired sessions of userID.
func (m *SessionManager) ListSessions(ctx context.Context, userID ulid.ULID) ([]*Session, error) {
	all, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, oops.Code(CodeSessionLookupFailed).
			With("user_id", userID.String()).
			Wrap(err)
	}
	now := m.now()
	live := make([]*Session, 0, len(all))
	for _, s := range all {
		if !s.IsExpiredAt(now) {
			live = append(live, s)
		}
	}
	return live, nil
}

// ValidateAndMaybeRenew authenticates a presented session id. When the
// session is close to expiry it is replaced by a new one for the same user.
//
// Two concurrent calls on the same near-expiry session may both renew; each
// caller receives its own new session and the old one is deleted once.
func (m *SessionManager) ValidateAndMaybeRenew(ctx context.Context, id string) (*Validation, error) {
	if id == "" {
		return nil, oops.Code(CodeSessionMissing).Errorf("session id is required")
	}

	session, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeSessionInvalid).Errorf("invalid session")
		}
		return nil, oops.Code(CodeSessionLookupFailed).
			With("session", Fingerprint(id)).
			Wrap(err)
	}

	now := m.now()
	if session.IsExpiredAt(now) {
		m.discard(ctx, id, "expired_session")
		return nil, oops.Code(CodeSessionExpired).
			With("expired_at", session.ExpiresAt).
			Errorf("session has expired")
	}

	if session.TimeLeft(now) > m.threshold {
		return &Validation{UserID: session.UserID, Session: session}, nil
	}

	renewed, err := m.CreateSession(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	m.discard(ctx, id, "renew_session")
	SessionsRenewed.Inc()

	return &Validation{UserID: renewed.UserID, Session: renewed, Renewed: true}, nil
}

// discard deletes a session best-effort. A concurrent deleter winning the
// race is expected and stays silent.
func (m *SessionManager) discard(ctx context.Context, id, operation string) {
	if _, err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		m.logger.WarnContext(ctx, "best-effort session delete failed",
			"operation", operation,
			"session", Fingerprint(id),
			"error", err.Error(),
		)
	}
}
