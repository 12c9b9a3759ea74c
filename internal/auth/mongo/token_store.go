// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/holomush/holoauth/internal/auth"
)

type tokenDoc struct {
	Token      string    `bson:"_id"`
	Kind       string    `bson:"kind"`
	Identifier string    `bson:"identifier"`
	ExpiresAt  time.Time `bson:"expires_at"`
	CreatedAt  time.Time `bson:"created_at"`
}

// TokenStore implements auth.TokenStore on the tokens collection.
type TokenStore struct {
	coll *mongo.Collection
}

var _ auth.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a TokenStore.
func NewTokenStore(db *mongo.Database) *TokenStore {
	return &TokenStore{coll: db.Collection(TokensCollection)}
}

// Create inserts a token. The unique (identifier, kind) index refuses a
// second token for a pair with ErrAlreadyExists.
func (s *TokenStore) Create(ctx context.Context, token *auth.Token) error {
	_, err := s.coll.InsertOne(ctx, tokenDoc{
		Token:      token.Token,
		Kind:       string(token.Kind),
		Identifier: token.Identifier,
		ExpiresAt:  token.ExpiresAt,
		CreatedAt:  token.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return oops.Code("TOKEN_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("TOKEN_INSERT_FAILED").With("kind", string(token.Kind)).Wrap(err)
	}
	return nil
}

// Get retrieves a token by value.
func (s *TokenStore) Get(ctx context.Context, value string) (*auth.Token, error) {
	return decodeToken(s.coll.FindOne(ctx, bson.M{"_id": value}), "get token")
}

// FindByIdentifier returns the token of kind issued to identifier.
func (s *TokenStore) FindByIdentifier(ctx context.Context, identifier string, kind auth.TokenKind) (*auth.Token, error) {
	res := s.coll.FindOne(ctx, bson.M{"identifier": identifier, "kind": string(kind)})
	return decodeToken(res, "find token by identifier")
}

// Delete removes a token and returns the removed document.
func (s *TokenStore) Delete(ctx context.Context, value string) (*auth.Token, error) {
	return decodeToken(s.coll.FindOneAndDelete(ctx, bson.M{"_id": value}), "delete token")
}

func decodeToken(res *mongo.SingleResult, operation string) (*auth.Token, error) {
	var doc tokenDoc
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("TOKEN_ROW_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	return &auth.Token{
		Token:      doc.Token,
		Kind:       auth.TokenKind(doc.Kind),
		Identifier: doc.Identifier,
		ExpiresAt:  doc.ExpiresAt,
		CreatedAt:  doc.CreatedAt,
	}, nil
}
