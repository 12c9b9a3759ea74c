// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// unlinkIndex deletes the identifier index only while it still points at the
// token being removed, so a newer token issued meanwhile stays reachable.
var unlinkIndex = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type tokenRecord struct {
	Token      string    `json:"token"`
	Kind       string    `json:"kind"`
	Identifier string    `json:"identifier"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TokenStore implements auth.TokenStore on Redis. Token keys carry no Redis
// TTL so an expired token can still be told apart from an unknown one.
type TokenStore struct {
	client goredis.UniversalClient
	keys   keys
}

var _ auth.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a TokenStore under prefix.
func NewTokenStore(client goredis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{client: client, keys: newKeys(prefix)}
}

// Create claims the identifier index with SETNX and then writes the token
// record. A pair that already has a token is refused with ErrAlreadyExists.
func (s *TokenStore) Create(ctx context.Context, token *auth.Token) error {
	data, err := json.Marshal(tokenRecord{
		Token:      token.Token,
		Kind:       string(token.Kind),
		Identifier: token.Identifier,
		ExpiresAt:  token.ExpiresAt,
		CreatedAt:  token.CreatedAt,
	})
	if err != nil {
		return oops.Code("TOKEN_ENCODE_FAILED").Wrap(err)
	}

	indexKey := s.keys.tokenIndex(string(token.Kind), token.Identifier)
	claimed, err := s.client.SetNX(ctx, indexKey, token.Token, 0).Result()
	if err != nil {
		return oops.Code("TOKEN_INDEX_FAILED").With("kind", string(token.Kind)).Wrap(err)
	}
	if !claimed {
		return oops.Code("TOKEN_INSERT_FAILED").With("kind", string(token.Kind)).Wrap(auth.ErrAlreadyExists)
	}

	ok, err := s.client.SetNX(ctx, s.keys.token(token.Token), data, 0).Result()
	if err == nil && !ok {
		err = auth.ErrAlreadyExists
	}
	if err != nil {
		_ = unlinkIndex.Run(ctx, s.client, []string{indexKey}, token.Token).Err()
		return oops.Code("TOKEN_INSERT_FAILED").Wrap(err)
	}
	return nil
}

// Get retrieves a token by value.
func (s *TokenStore) Get(ctx context.Context, value string) (*auth.Token, error) {
	data, err := s.client.Get(ctx, s.keys.token(value)).Bytes()
	return s.decode(data, err, "get token")
}

// FindByIdentifier follows the identifier index to the current token.
func (s *TokenStore) FindByIdentifier(ctx context.Context, identifier string, kind auth.TokenKind) (*auth.Token, error) {
	indexKey := s.keys.tokenIndex(string(kind), identifier)
	value, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("TOKEN_ROW_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_QUERY_FAILED").With("operation", "find token by identifier").Wrap(err)
	}

	token, err := s.Get(ctx, value)
	if errors.Is(err, auth.ErrNotFound) {
		_ = unlinkIndex.Run(ctx, s.client, []string{indexKey}, value).Err()
	}
	return token, err
}

// Delete removes a token with GETDEL so exactly one concurrent caller
// receives the record.
func (s *TokenStore) Delete(ctx context.Context, value string) (*auth.Token, error) {
	data, err := s.client.GetDel(ctx, s.keys.token(value)).Bytes()
	token, err := s.decode(data, err, "delete token")
	if err != nil {
		return nil, err
	}
	indexKey := s.keys.tokenIndex(string(token.Kind), token.Identifier)
	_ = unlinkIndex.Run(ctx, s.client, []string{indexKey}, value).Err()
	return token, nil
}

func (s *TokenStore) decode(data []byte, err error, operation string) (*auth.Token, error) {
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("TOKEN_ROW_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("TOKEN_DECODE_FAILED").Wrap(err)
	}
	return &auth.Token{
		Token:      rec.Token,
		Kind:       auth.TokenKind(rec.Kind),
		Identifier: rec.Identifier,
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
	}, nil
}
