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

// AccountService handles registration, email verification and password
// changes. Mail delivery failures never undo the account change that
// triggered them; they are logged and the user can request a new token.
type AccountService struct {
	users    UserStore
	tokens   *TokenManager
	sessions *SessionManager
	hasher   PasswordHasher
	mailer   Mailer
	logger   *slog.Logger
	now      func() time.Time
}

// AccountDeps groups the collaborators of AccountService.
type AccountDeps struct {
	Users    UserStore
	Tokens   *TokenManager
	Sessions *SessionManager
	Hasher   PasswordHasher
	Mailer   Mailer
	Logger   *slog.Logger
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// NewAccountService creates a new AccountService.
func NewAccountService(deps AccountDeps) (*AccountService, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Errorf("users store is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("token manager is required")
	case deps.Sessions == nil:
		return nil, oops.Errorf("session manager is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Mailer == nil:
		return nil, oops.Errorf("mailer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &AccountService{
		users:    deps.Users,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		mailer:   deps.Mailer,
		logger:   deps.Logger,
		now:      deps.Now,
	}, nil
}

// Register creates an unverified account and mails a verification token.
func (s *AccountService) Register(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errAccountExists(email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := s.now()
	user := &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, ErrAlreadyExists) {
			return nil, errAccountExists(email)
		}
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.sendToken(ctx, TokenEmailVerification, email)
	return user, nil
}

// ResendVerification issues a fresh verification token, superseding the
// previous one. Unknown and already verified addresses succeed silently.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return oops.Code(CodeAccountMissingFields).Errorf("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("ACCOUNT_RESEND_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	if user.EmailVerified {
		return nil
	}

	s.sendToken(ctx, TokenEmailVerification, email)
	return nil
}

// VerifyEmail redeems a verification token and marks its owner verified.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*User, error) {
	email, err := s.tokens.ConsumeToken(ctx, TokenEmailVerification, token)
	if err != nil {
		return nil, err
	}

	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, oops.Code("ACCOUNT_VERIFY_FAILED").
			With("operation", "mark email verified").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.EmailVerified = true
	return user, nil
}

// ForgotPassword mails a password reset token. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return oops.Code(CodeAccountMissingFields).Errorf("email is required")
	}

	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("ACCOUNT_FORGOT_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	s.sendToken(ctx, TokenPasswordReset, email)
	return nil
}

// ResetPassword redeems a reset token, stores the new password and ends all
// of the user's sessions.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) (*User, error) {
	if token == "" {
		return nil, oops.Code(CodeTokenEmpty).Errorf("reset token is required")
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	email, err := s.tokens.ConsumeToken(ctx, TokenPasswordReset, token)
	if err != nil {
		return nil, err
	}
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.setPassword(ctx, user, password); err != nil {
		return nil, err
	}

	if _, err := s.sessions.EndAllSessions(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "best-effort session revocation failed",
			"operation", "revoke_sessions",
			"user_id", user.ID.String(),
			"error", err.Error(),
		)
	}
	return user, nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID ulid.ULID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return oops.Code(CodeAccountMissingFields).Errorf("old and new password are required")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return oops.Code("ACCOUNT_PASSWORD_FAILED").
			With("operation", "verify password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !valid {
		return oops.Code(CodeAccountInvalidPassword).Errorf("current password is incorrect")
	}

	return s.setPassword(ctx, user, newPassword)
}

// Profile returns the account of userID.
func (s *AccountService) Profile(ctx context.Context, userID ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).
				With("user_id", userID.String()).
				Errorf("account not found")
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return user, nil
}

func (s *AccountService) userByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).
				With("email", email).
				Errorf("account not found")
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

func (s *AccountService) setPassword(ctx context.Context, user *User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("ACCOUNT_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return oops.Code("ACCOUNT_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.PasswordHash = hash
	return nil
}

// sendToken issues a token and mails it. Failures are logged only.
func (s *AccountService) sendToken(ctx context.Context, kind TokenKind, email string) {
	token, err := s.tokens.CreateToken(ctx, kind, email)
	if err == nil {
		err = s.mailer.Send(ctx, kind, email, token.Token)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort token delivery failed",
			"operation", "send_"+kind.String(),
			"error", err.Error(),
		)
	}
}

func errAccountExists(email string) error {
	return oops.Code(CodeAccountExists).
		With("email", email).
		Errorf("an account with this email already exists")
}
