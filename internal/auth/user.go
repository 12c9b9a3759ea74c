// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Password constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 1024
)

// User is an account that can hold sessions.
type User struct {
	ID            ulid.ULID
	Email         string
	PasswordHash  string
	Name          string
	Image         string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeEmail trims and lower-cases an email so it can serve as a lookup
// key and token identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a single bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeAccountMissingFields).Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code(CodeAccountInvalidEmail).
			With("email", email).
			Errorf("email address is malformed")
	}
	return nil
}

// ValidatePassword checks a new password against the length rules.
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code(CodeAccountMissingFields).Errorf("password is required")
	}
	if len(password) < MinPasswordLength {
		return oops.Code(CodeAccountWeakPassword).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code(CodeAccountWeakPassword).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// UserStore manages user persistence.
type UserStore interface {
	// Create stores a new user. Returns ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by id.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the password hash of a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// MarkEmailVerified flags the user's email as verified.
	MarkEmailVerified(ctx context.Context, id ulid.ULID) error
}
