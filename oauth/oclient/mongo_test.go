package oclient

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newTestMongoStore(t *testing.T, mt *mtest.T) *MongoStore {
	return NewMongoStore(mt.DB, testSealer(t))
}

// credentialBSON renders a stored document the way MongoStore writes it.
func credentialBSON(t *testing.T, s *MongoStore, c StoredCredential) bson.D {
	t.Helper()
	access, err := s.sealer.Seal(c.AccessToken, c.UserID, c.Provider)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	refresh, err := s.sealer.Seal(c.RefreshToken, c.UserID, c.Provider)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return bson.D{
		{Key: "_id", Value: c.ID},
		{Key: "user_id", Value: c.UserID},
		{Key: "provider", Value: c.Provider},
		{Key: "access_token", Value: access},
		{Key: "refresh_token", Value: refresh},
		{Key: "token_type", Value: c.TokenType},
		{Key: "scope", Value: c.Scope},
		{Key: "expires_at", Value: c.ExpiresAt},
		{Key: "version", Value: c.Version},
		{Key: "created_at", Value: c.CreatedAt},
		{Key: "updated_at", Value: c.UpdatedAt},
	}
}

func sampleCredential() StoredCredential {
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return StoredCredential{
		ID:           "0c6a4a77-9a3e-4a43-9f8a-2d8e1d1d6b11",
		UserID:       "user-1",
		Provider:     "gmail",
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		Scope:        "https://www.googleapis.com/auth/gmail.modify",
		ExpiresAt:    ts.Add(time.Hour),
		Version:      3,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

func TestMongoStore_Get(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		want := sampleCredential()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.oauth_credentials", mtest.FirstBatch, credentialBSON(t, s, want)))

		got, err := s.Get(context.Background(), "user-1", "gmail")
		if err != nil {
			mt.Fatalf("Get failed: %v", err)
		}
		if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
			mt.Errorf("tokens not opened: got %q / %q", got.AccessToken, got.RefreshToken)
		}
		if !got.ExpiresAt.Equal(want.ExpiresAt) {
			mt.Errorf("expected expires_at %v, got %v", want.ExpiresAt, got.ExpiresAt)
		}
		if got.Version != want.Version {
			mt.Errorf("expected version %d, got %d", want.Version, got.Version)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.oauth_credentials", mtest.FirstBatch))

		_, err := s.Get(context.Background(), "user-1", "gmail")
		if err != ErrNotFound {
			mt.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("tampered ciphertext", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		doc := credentialBSON(t, s, sampleCredential())
		// Sealed for another user.
		other := sampleCredential()
		other.UserID = "user-2"
		doc[3].Value = credentialBSON(t, s, other)[3].Value
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.oauth_credentials", mtest.FirstBatch, doc))

		if _, err := s.Get(context.Background(), "user-1", "gmail"); err == nil {
			mt.Error("expected error opening token sealed for another record")
		}
	})
}

func TestMongoStore_Put(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		stored := sampleCredential()
		stored.Version = 1
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: credentialBSON(t, s, stored)}))

		in := sampleCredential()
		in.ID, in.Version = "", 0
		got, err := s.Put(context.Background(), in)
		if err != nil {
			mt.Fatalf("Put failed: %v", err)
		}
		if got.ID != stored.ID || got.Version != 1 {
			mt.Errorf("unexpected record %+v", got)
		}
	})

	mt.Run("duplicate key retried", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		stored := sampleCredential()
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11000, Message: "E11000 duplicate key error", Name: "DuplicateKey"}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: credentialBSON(t, s, stored)}),
		)
		if _, err := s.Put(context.Background(), sampleCredential()); err != nil {
			mt.Fatalf("Put failed after duplicate key: %v", err)
		}
	})

	mt.Run("command error", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value", Name: "BadValue"}))
		if _, err := s.Put(context.Background(), sampleCredential()); err == nil {
			mt.Error("expected error")
		}
	})
}

func TestMongoStore_CompareAndSwap(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("swapped", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		next := sampleCredential()
		next.Version = 4
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: credentialBSON(t, s, next)}))

		got, err := s.CompareAndSwap(context.Background(), sampleCredential())
		if err != nil {
			mt.Fatalf("CompareAndSwap failed: %v", err)
		}
		if got.Version != 4 {
			mt.Errorf("expected version 4, got %d", got.Version)
		}
	})

	mt.Run("conflict", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := s.CompareAndSwap(context.Background(), sampleCredential())
		if err != ErrVersionConflict {
			mt.Errorf("expected ErrVersionConflict, got %v", err)
		}
	})
}

func TestMongoStore_Delete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("delete", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		if err := s.Delete(context.Background(), "user-1", "gmail"); err != nil {
			mt.Errorf("Delete failed: %v", err)
		}
	})

	mt.Run("compare and delete", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		if err := s.CompareAndDelete(context.Background(), "user-1", "gmail", 3); err != nil {
			mt.Errorf("CompareAndDelete failed: %v", err)
		}
	})

	mt.Run("compare and delete conflict", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		if err := s.CompareAndDelete(context.Background(), "user-1", "gmail", 3); err != ErrVersionConflict {
			mt.Errorf("expected ErrVersionConflict, got %v", err)
		}
	})
}

func TestMongoStore_ListProviders(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "db.oauth_credentials", mtest.FirstBatch,
			bson.D{{Key: "provider", Value: "github"}},
			bson.D{{Key: "provider", Value: "gmail"}},
		))
		got, err := s.ListProviders(context.Background(), "user-1")
		if err != nil {
			mt.Fatalf("ListProviders failed: %v", err)
		}
		if len(got) != 2 || got[0] != "github" || got[1] != "gmail" {
			mt.Errorf("unexpected providers %v", got)
		}
	})
}

func TestMongoStore_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create", func(mt *mtest.T) {
		s := newTestMongoStore(t, mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		if err := s.EnsureIndexes(context.Background()); err != nil {
			mt.Errorf("EnsureIndexes failed: %v", err)
		}
	})
}
