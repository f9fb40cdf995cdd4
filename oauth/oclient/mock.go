package oclient

import "context"

// MockStore provides customizable hooks for testing Store consumers.
type MockStore struct {
	GetFunc              func(ctx context.Context, userID, provider string) (*StoredCredential, error)
	PutFunc              func(ctx context.Context, c StoredCredential) (*StoredCredential, error)
	CompareAndSwapFunc   func(ctx context.Context, c StoredCredential) (*StoredCredential, error)
	DeleteFunc           func(ctx context.Context, userID, provider string) error
	CompareAndDeleteFunc func(ctx context.Context, userID, provider string, version int64) error
	ListProvidersFunc    func(ctx context.Context, userID string) ([]string, error)
}

var _ Store = (*MockStore)(nil)

// Get calls GetFunc if set, otherwise returns ErrNotFound
func (m *MockStore) Get(ctx context.Context, userID, provider string) (*StoredCredential, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID, provider)
	}
	return nil, ErrNotFound
}

// Put calls PutFunc if set, otherwise echoes c
func (m *MockStore) Put(ctx context.Context, c StoredCredential) (*StoredCredential, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, c)
	}
	return &c, nil
}

// CompareAndSwap calls CompareAndSwapFunc if set, otherwise returns ErrVersionConflict
func (m *MockStore) CompareAndSwap(ctx context.Context, c StoredCredential) (*StoredCredential, error) {
	if m.CompareAndSwapFunc != nil {
		return m.CompareAndSwapFunc(ctx, c)
	}
	return nil, ErrVersionConflict
}

// Delete calls DeleteFunc if set, otherwise returns nil
func (m *MockStore) Delete(ctx context.Context, userID, provider string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, provider)
	}
	return nil
}

// CompareAndDelete calls CompareAndDeleteFunc if set, otherwise returns nil
func (m *MockStore) CompareAndDelete(ctx context.Context, userID, provider string, version int64) error {
	if m.CompareAndDeleteFunc != nil {
		return m.CompareAndDeleteFunc(ctx, userID, provider, version)
	}
	return nil
}

// ListProviders calls ListProvidersFunc if set, otherwise returns nil, nil
func (m *MockStore) ListProviders(ctx context.Context, userID string) ([]string, error) {
	if m.ListProvidersFunc != nil {
		return m.ListProvidersFunc(ctx, userID)
	}
	return nil, nil
}
