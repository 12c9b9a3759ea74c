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

	"github.com/holomush/holoauth/internal/auth"
)

type userDoc struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"password_hash"`
	Name          string    `bson:"name"`
	Image         string    `bson:"image"`
	EmailVerified bool      `bson:"email_verified"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

// UserStore implements auth.UserStore on the users collection. Emails are
// stored normalized so the unique index is case-insensitive.
type UserStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore.
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{coll: db.Collection(UsersCollection), now: time.Now}
}

// Create inserts a user. A taken email yields auth.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	_, err := s.coll.InsertOne(ctx, userDoc{
		ID:            user.ID.String(),
		Email:         auth.NormalizeEmail(user.Email),
		PasswordHash:  user.PasswordHash,
		Name:          user.Name,
		Image:         user.Image,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return oops.Code("USER_INSERT_FAILED").Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("USER_INSERT_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by id.
func (s *UserStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return decodeUser(s.coll.FindOne(ctx, bson.M{"_id": id.String()}), "get user by id")
}

// GetByEmail retrieves a user by email, ignoring case.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return decodeUser(s.coll.FindOne(ctx, bson.M{"email": auth.NormalizeEmail(email)}), "get user by email")
}

// UpdatePassword replaces the stored password hash.
func (s *UserStore) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return s.set(ctx, id, bson.M{"password_hash": passwordHash}, "update password")
}

// MarkEmailVerified sets email_verified on the user.
func (s *UserStore) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	return s.set(ctx, id, bson.M{"email_verified": true}, "mark email verified")
}

func (s *UserStore) set(ctx context.Context, id ulid.ULID, fields bson.M, operation string) error {
	fields["updated_at"] = s.now()
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": fields})
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("user_id", id.String()).
			Wrap(err)
	}
	if res.MatchedCount == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func decodeUser(res *mongo.SingleResult, operation string) (*auth.User, error) {
	var doc userDoc
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	id, err := ulid.Parse(doc.ID)
	if err != nil {
		return nil, oops.Code("USER_ID_INVALID").With("id", doc.ID).Wrap(err)
	}
	return &auth.User{
		ID:            id,
		Email:         doc.Email,
		PasswordHash:  doc.PasswordHash,
		Name:          doc.Name,
		Image:         doc.Image,
		EmailVerified: doc.EmailVerified,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}
