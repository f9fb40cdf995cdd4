package oclient

import "context"

// Store persists one credential per (user, provider).
type Store interface {
	// Get returns ErrNotFound when the user never connected the provider.
	Get(ctx context.Context, userID, provider string) (*StoredCredential, error)
	// Put upserts the credential and bumps its version. It returns the stored record.
	Put(ctx context.Context, c StoredCredential) (*StoredCredential, error)
	// CompareAndSwap replaces the credential only while its version is still
	// c.Version, and returns ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, c StoredCredential) (*StoredCredential, error)
	// Delete removes the credential. Deleting a missing credential is not an error.
	Delete(ctx context.Context, userID, provider string) error
	// CompareAndDelete removes the credential only while its version matches.
	CompareAndDelete(ctx context.Context, userID, provider string, version int64) error
	// ListProviders returns the providers the user has credentials for.
	ListProviders(ctx context.Context, userID string) ([]string, error)
}
