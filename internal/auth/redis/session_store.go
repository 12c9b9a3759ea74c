// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// DefaultExpiryGrace is how long past its expiry a session key lingers
// before Redis evicts it on its own. The reaper normally removes it first.
const DefaultExpiryGrace = time.Hour

type sessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore implements auth.SessionStore on Redis.
type SessionStore struct {
	client goredis.UniversalClient
	keys   keys
	grace  time.Duration
}

var _ auth.SessionStore = (*SessionStore)(nil)

// SessionStoreOptions configures a SessionStore.
type SessionStoreOptions struct {
	Prefix      string
	ExpiryGrace time.Duration
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(client goredis.UniversalClient, opts SessionStoreOptions) *SessionStore {
	if opts.ExpiryGrace <= 0 {
		opts.ExpiryGrace = DefaultExpiryGrace
	}
	return &SessionStore{client: client, keys: newKeys(opts.Prefix), grace: opts.ExpiryGrace}
}

// Create writes the session record and its index entries.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	data, err := json.Marshal(sessionRecord{
		ID:        session.ID,
		UserID:    session.UserID.String(),
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	ttl := time.Until(session.ExpiresAt) + s.grace
	if ttl < time.Second {
		ttl = 0
	}
	ok, err := s.client.SetNX(ctx, s.keys.session(session.ID), data, ttl).Result()
	if err != nil {
		return oops.Code("SESSION_INSERT_FAILED").Wrap(err)
	}
	if !ok {
		return oops.Code("SESSION_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, s.keys.sessionExpiry(), goredis.Z{
			Score:  float64(session.ExpiresAt.UnixMilli()),
			Member: session.ID,
		})
		pipe.SAdd(ctx, s.keys.userSessions(session.UserID.String()), session.ID)
		return nil
	})
	if err != nil {
		_ = s.client.Del(ctx, s.keys.session(session.ID)).Err()
		return oops.Code("SESSION_INDEX_FAILED").With("user_id", session.UserID.String()).Wrap(err)
	}
	return nil
}

// Get retrieves a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	data, err := s.client.Get(ctx, s.keys.session(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "get session").Wrap(err)
	}
	return decodeSession(data)
}

// ListByUser returns a user's sessions, oldest first.
func (s *SessionStore) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	setKey := s.keys.userSessions(userID.String())
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "list sessions by user").Wrap(err)
	}
	sessions, stale, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, setKey, toAny(stale)...).Err()
	}
	slices.SortFunc(sessions, func(a, b *auth.Session) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return sessions, nil
}

// ListExpired returns sessions whose expiry is strictly before the cutoff.
func (s *SessionStore) ListExpired(ctx context.Context, before time.Time) ([]*auth.Session, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keys.sessionExpiry(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "list expired sessions").Wrap(err)
	}
	sessions, stale, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.keys.sessionExpiry(), toAny(stale)...).Err()
	}
	return sessions, nil
}

// Delete removes a session with GETDEL so exactly one concurrent caller
// receives the record.
func (s *SessionStore) Delete(ctx context.Context, id string) (*auth.Session, error) {
	data, err := s.client.GetDel(ctx, s.keys.session(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		_ = s.client.ZRem(ctx, s.keys.sessionExpiry(), id).Err()
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	session, err := decodeSession(data)
	if err != nil {
		return nil, err
	}

	// The record is gone either way; leftover index entries are pruned on read.
	_, _ = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, s.keys.sessionExpiry(), id)
		pipe.SRem(ctx, s.keys.userSessions(session.UserID.String()), id)
		return nil
	})
	return session, nil
}

// DeleteByUser removes every session of a user.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	ids, err := s.client.SMembers(ctx, s.keys.userSessions(userID.String())).Result()
	if err != nil {
		return 0, oops.Code("SESSION_QUERY_FAILED").With("operation", "delete sessions by user").Wrap(err)
	}
	var n int64
	for _, id := range ids {
		_, err := s.Delete(ctx, id)
		if errors.Is(err, auth.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// load fetches records for ids; ids whose record no longer exists are
// returned as stale.
func (s *SessionStore) load(ctx context.Context, ids []string) ([]*auth.Session, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	recordKeys := make([]string, len(ids))
	for i, id := range ids {
		recordKeys[i] = s.keys.session(id)
	}
	values, err := s.client.MGet(ctx, recordKeys...).Result()
	if err != nil {
		return nil, nil, oops.Code("SESSION_QUERY_FAILED").With("operation", "load sessions").Wrap(err)
	}

	var (
		sessions []*auth.Session
		stale    []string
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, stale, nil
}

func decodeSession(data []byte) (*auth.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	userID, err := ulid.Parse(rec.UserID)
	if err != nil {
		return nil, oops.Code("SESSION_USER_ID_INVALID").With("user_id", rec.UserID).Wrap(err)
	}
	return &auth.Session{
		ID:        rec.ID,
		UserID:    userID,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
