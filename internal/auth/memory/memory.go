// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process auth stores for development and tests.
// State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// Compile-time interface checks.
var (
	_ auth.SessionStore = (*SessionStore)(nil)
	_ auth.TokenStore   = (*TokenStore)(nil)
	_ auth.UserStore    = (*UserStore)(nil)
)

// SessionStore keeps sessions in a map guarded by a mutex.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]auth.Session
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]auth.Session)}
}

// Create stores a new session.
func (s *SessionStore) Create(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return oops.Code("SESSION_STORE_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	s.sessions[session.ID] = *session
	return nil
}

// Get retrieves a session by id.
func (s *SessionStore) Get(_ context.Context, id string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &session, nil
}

// ListByUser returns all sessions of a user, oldest first.
func (s *SessionStore) ListByUser(_ context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	return s.filter(func(session auth.Session) bool { return session.UserID == userID }), nil
}

// ListExpired returns sessions that expired before t.
func (s *SessionStore) ListExpired(_ context.Context, before time.Time) ([]*auth.Session, error) {
	return s.filter(func(session auth.Session) bool { return session.ExpiresAt.Before(before) }), nil
}

// Delete removes a session and returns it.
func (s *SessionStore) Delete(_ context.Context, id string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.sessions, id)
	return &session, nil
}

// DeleteByUser removes all sessions of a user.
func (s *SessionStore) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) filter(keep func(auth.Session) bool) []*auth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Session
	for _, session := range s.sessions {
		if keep(session) {
			session := session
			out = append(out, &session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type tokenIndexKey struct {
	identifier string
	kind       auth.TokenKind
}

// TokenStore keeps tokens in a map with an (identifier, kind) index.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]auth.Token
	index  map[tokenIndexKey]string
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]auth.Token),
		index:  make(map[tokenIndexKey]string),
	}
}

// Create stores a new token and points the identifier index at it. It
// refuses a token whose (identifier, kind) already has one.
func (s *TokenStore) Create(_ context.Context, token *auth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.Token]; ok {
		return oops.Code("TOKEN_STORE_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	if current, ok := s.index[tokenIndexKey{token.Identifier, token.Kind}]; ok {
		if _, live := s.tokens[current]; live {
			return oops.Code("TOKEN_STORE_INSERT_FAILED").
				With("kind", string(token.Kind)).
				Wrap(auth.ErrAlreadyExists)
		}
	}
	s.tokens[token.Token] = *token
	s.index[tokenIndexKey{token.Identifier, token.Kind}] = token.Token
	return nil
}

// Get retrieves a token.
func (s *TokenStore) Get(_ context.Context, value string) (*auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[value]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &token, nil
}

// FindByIdentifier returns the token issued to identifier for kind.
func (s *TokenStore) FindByIdentifier(_ context.Context, identifier string, kind auth.TokenKind) (*auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.index[tokenIndexKey{identifier, kind}]
	if !ok {
		return nil, auth.ErrNotFound
	}
	token, ok := s.tokens[value]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &token, nil
}

// Delete removes a token and returns it.
func (s *TokenStore) Delete(_ context.Context, value string) (*auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[value]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.tokens, value)
	key := tokenIndexKey{token.Identifier, token.Kind}
	if s.index[key] == value {
		delete(s.index, key)
	}
	return &token, nil
}

// Len returns the number of stored tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// UserStore keeps users in a map with an email index.
type UserStore struct {
	mu      sync.Mutex
	users   map[ulid.ULID]auth.User
	byEmail map[string]ulid.ULID
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[ulid.ULID]auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := auth.NormalizeEmail(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return auth.ErrAlreadyExists
	}
	stored := *user
	stored.Email = email
	s.users[user.ID] = stored
	s.byEmail[email] = user.ID
	return nil
}

// GetByID retrieves a user by id.
func (s *UserStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &user, nil
}

// GetByEmail retrieves a user by email.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

// UpdatePassword replaces a user's password hash.
func (s *UserStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	return s.update(id, func(u *auth.User) { u.PasswordHash = passwordHash })
}

// MarkEmailVerified flags a user's email as verified.
func (s *UserStore) MarkEmailVerified(_ context.Context, id ulid.ULID) error {
	return s.update(id, func(u *auth.User) { u.EmailVerified = true })
}

func (s *UserStore) update(id ulid.ULID, apply func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	apply(&user)
	user.UpdatedAt = time.Now()
	s.users[id] = user
	return nil
}
