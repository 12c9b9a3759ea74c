// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/holomush/holoauth/internal/auth"
)

type sessionDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d sessionDoc) session() (*auth.Session, error) {
	userID, err := ulid.Parse(d.UserID)
	if err != nil {
		return nil, oops.Code("SESSION_USER_ID_INVALID").With("user_id", d.UserID).Wrap(err)
	}
	return &auth.Session{ID: d.ID, UserID: userID, ExpiresAt: d.ExpiresAt, CreatedAt: d.CreatedAt}, nil
}

// SessionStore implements auth.SessionStore on the sessions collection.
type SessionStore struct {
	coll *mongo.Collection
}

var _ auth.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore.
func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{coll: db.Collection(SessionsCollection)}
}

// Create inserts a session.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	_, err := s.coll.InsertOne(ctx, sessionDoc{
		ID:        session.ID,
		UserID:    session.UserID.String(),
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return oops.Code("SESSION_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("SESSION_INSERT_FAILED").With("user_id", session.UserID.String()).Wrap(err)
	}
	return nil
}

// Get retrieves a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	return s.one(s.coll.FindOne(ctx, bson.M{"_id": id}), "get session")
}

// ListByUser returns a user's sessions, oldest first.
func (s *SessionStore) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	return s.many(ctx, bson.M{"user_id": userID.String()}, "created_at", "list sessions by user")
}

// ListExpired returns sessions whose expiry is strictly before the cutoff.
func (s *SessionStore) ListExpired(ctx context.Context, before time.Time) ([]*auth.Session, error) {
	return s.many(ctx, bson.M{"expires_at": bson.M{"$lt": before}}, "expires_at", "list expired sessions")
}

// Delete removes a session with FindOneAndDelete so exactly one concurrent
// caller receives the document.
func (s *SessionStore) Delete(ctx context.Context, id string) (*auth.Session, error) {
	return s.one(s.coll.FindOneAndDelete(ctx, bson.M{"_id": id}), "delete session")
}

// DeleteByUser removes every session of a user.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"user_id": userID.String()})
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return res.DeletedCount, nil
}

func (s *SessionStore) one(res *mongo.SingleResult, operation string) (*auth.Session, error) {
	var doc sessionDoc
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	return doc.session()
}

func (s *SessionStore) many(ctx context.Context, filter bson.M, sortBy, operation string) ([]*auth.Session, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: sortBy, Value: 1}}))
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	var docs []sessionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, oops.Code("SESSION_ITERATE_FAILED").With("operation", operation).Wrap(err)
	}
	sessions := make([]*auth.Session, 0, len(docs))
	for _, doc := range docs {
		session, err := doc.session()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
