package oclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ Store = &MongoStore{}

// MongoStore is a MongoDB-backed Store. Token values are sealed before they
// are written.
type MongoStore struct {
	credentials *mongo.Collection
	sealer      *Sealer
	now         func() time.Time
}

type credentialDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Provider     string    `bson:"provider"`
	AccessToken  string    `bson:"access_token"`
	RefreshToken string    `bson:"refresh_token"`
	TokenType    string    `bson:"token_type"`
	Scope        string    `bson:"scope"`
	ExpiresAt    time.Time `bson:"expires_at"`
	Version      int64     `bson:"version"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// NewMongoStore creates a store backed by the oauth_credentials collection of db.
func NewMongoStore(db *mongo.Database, sealer *Sealer) *MongoStore {
	return &MongoStore{
		credentials: db.Collection("oauth_credentials"),
		sealer:      sealer,
		now:         time.Now,
	}
}

// EnsureIndexes creates the unique (user_id, provider) index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.credentials.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "provider", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_provider_unique"),
	})
	return err
}

func (s *MongoStore) decode(doc credentialDoc) (*StoredCredential, error) {
	access, err := s.sealer.Open(doc.AccessToken, doc.UserID, doc.Provider)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.sealer.Open(doc.RefreshToken, doc.UserID, doc.Provider)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	c := &StoredCredential{
		ID:           doc.ID,
		UserID:       doc.UserID,
		Provider:     doc.Provider,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    doc.TokenType,
		Scope:        doc.Scope,
		Version:      doc.Version,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	if !doc.ExpiresAt.IsZero() {
		c.ExpiresAt = doc.ExpiresAt
	}
	return c, nil
}

// fields returns the $set document for c with sealed tokens.
func (s *MongoStore) fields(c StoredCredential, now time.Time) (bson.M, error) {
	access, err := s.sealer.Seal(c.AccessToken, c.UserID, c.Provider)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sealer.Seal(c.RefreshToken, c.UserID, c.Provider)
	if err != nil {
		return nil, err
	}
	return bson.M{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    c.TokenType,
		"scope":         c.Scope,
		"expires_at":    c.ExpiresAt,
		"updated_at":    now,
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, userID, provider string) (*StoredCredential, error) {
	var doc credentialDoc
	err := s.credentials.FindOne(ctx, bson.M{"user_id": userID, "provider": provider}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.decode(doc)
}

// Put upserts the credential in one findAndModify round trip.
func (s *MongoStore) Put(ctx context.Context, c StoredCredential) (*StoredCredential, error) {
	now := s.now().UTC()
	set, err := s.fields(c, now)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"user_id": c.UserID, "provider": c.Provider}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc credentialDoc
	err = s.credentials.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two first-time upserts raced on the unique index; the loser now matches.
		err = s.credentials.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, err
	}
	return s.decode(doc)
}

func (s *MongoStore) CompareAndSwap(ctx context.Context, c StoredCredential) (*StoredCredential, error) {
	now := s.now().UTC()
	set, err := s.fields(c, now)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"user_id": c.UserID, "provider": c.Provider, "version": c.Version}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc credentialDoc
	err = s.credentials.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	return s.decode(doc)
}

func (s *MongoStore) Delete(ctx context.Context, userID, provider string) error {
	_, err := s.credentials.DeleteOne(ctx, bson.M{"user_id": userID, "provider": provider})
	return err
}

func (s *MongoStore) CompareAndDelete(ctx context.Context, userID, provider string, version int64) error {
	res, err := s.credentials.DeleteOne(ctx, bson.M{"user_id": userID, "provider": provider, "version": version})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *MongoStore) ListProviders(ctx context.Context, userID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"provider": 1}).
		SetSort(bson.D{{Key: "provider", Value: 1}})
	cursor, err := s.credentials.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var out []string
	for cursor.Next(ctx) {
		var doc struct {
			Provider string `bson:"provider"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Provider)
	}
	return out, cursor.Err()
}
