// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// IDBytes is the entropy of session ids and tokens: 32 bytes = 64 hex chars.
const IDBytes = 32

// Session binds an opaque bearer id to a user until ExpiresAt.
type Session struct {
	ID        string
	UserID    ulid.ULID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the session is no longer valid at t.
// A session is valid only while t is strictly before ExpiresAt.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// TimeLeft returns the remaining lifetime at t. It is negative once expired.
func (s *Session) TimeLeft(t time.Time) time.Duration {
	return s.ExpiresAt.Sub(t)
}

// Fingerprint returns a short, non-reversible label for the session that is
// safe to show to clients and write to logs.
func (s *Session) Fingerprint() string {
	return Fingerprint(s.ID)
}

// Fingerprint hashes a secret id and keeps the first 16 hex chars.
func Fingerprint(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:8])
}

// GenerateID returns a fresh hex-encoded random id from crypto/rand.
func GenerateID() (string, error) {
	b := make([]byte, IDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("ID_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", IDBytes).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// SessionStore persists sessions keyed by id, with a secondary index on user.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Session, error)

	// ListByUser returns every stored session of a user, expired or not.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*Session, error)

	// ListExpired returns sessions whose ExpiresAt is strictly before t.
	ListExpired(ctx context.Context, before time.Time) ([]*Session, error)

	// Delete removes a session and returns the removed record.
	// Exactly one of several concurrent callers gets the record; the others
	// get ErrNotFound.
	Delete(ctx context.Context, id string) (*Session, error)

	// DeleteByUser removes all sessions of a user and returns how many went.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)
}
