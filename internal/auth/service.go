// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	User    *User
	Session *Session
}

// Service verifies credentials and manages login sessions.
type Service struct {
	users    UserStore
	sessions *SessionManager
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(users UserStore, sessions *SessionManager, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, slog.Default())
}

// NewServiceWithLogger creates a new Service with a custom logger.
func NewServiceWithLogger(users UserStore, sessions *SessionManager, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users store is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{users: users, sessions: sessions, hasher: hasher, logger: logger}, nil
}

// Login checks credentials and opens a session. The checks run in a fixed
// order: missing input, unknown email, wrong password, unverified email.
// No session is created unless every check passes.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		recordLogin(ResultRejected)
		return nil, oops.Code(CodeMissingCredentials).Errorf("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			recordLogin(ResultNotFound)
			return nil, oops.Code(CodeUserNotFound).
				With("email", email).
				Errorf("user not found")
		}
		recordLogin(ResultError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		recordLogin(ResultError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		recordLogin(ResultRejected)
		return nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	if !user.EmailVerified {
		recordLogin(ResultUnverified)
		return nil, oops.Code(CodeEmailNotVerified).
			With("email", email).
			Errorf("email address has not been verified")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	session, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		recordLogin(ResultError)
		return nil, err
	}

	recordLogin(ResultSuccess)
	return &LoginResult{User: user, Session: session}, nil
}

// upgradeHash rehashes a legacy password. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, newHash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "upgrade_hash",
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
		return
	}
	user.PasswordHash = newHash
}

// Logout ends a session. Logging out of a session that is already gone
// succeeds.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return oops.Code(CodeSessionMissing).Errorf("session id is required")
	}
	return s.sessions.EndSession(ctx, sessionID)
}

// LogoutEverywhere ends every session of userID and reports how many ended.
func (s *Service) LogoutEverywhere(ctx context.Context, userID ulid.ULID) (int64, error) {
	return s.sessions.EndAllSessions(ctx, userID)
}
